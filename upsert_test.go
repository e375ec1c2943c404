package vnodefs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliotcourant/vnodefs/descriptor"
)

func newStt(n int, commitBase uint64) (out [8]*descriptor.FileDescriptor) {
	for i := 0; i < n; i++ {
		out[i] = descriptor.New(descriptor.Stt, commitBase+uint64(i), 500, 0)
	}
	return out
}

func basicFileSet(fid int32, nStt int) *FileSet {
	return &FileSet{
		Disk: descriptor.FileId{Level: 0, Id: 0},
		Fid:  fid,
		Head: descriptor.New(descriptor.Head, 1, 4096, 0),
		Data: descriptor.New(descriptor.Data, 1, 1000, 0),
		Sma:  descriptor.New(descriptor.Sma, 1, 256, 0),
		NStt: nStt,
		Stt:  newStt(nStt, 1),
	}
}

func TestUpsertAppendsWhenFidAbsent(t *testing.T) {
	m := New()
	require.NoError(t, UpsertFileSet(m, basicFileSet(200, 1)))
	require.NoError(t, UpsertFileSet(m, basicFileSet(100, 1)))
	require.NoError(t, UpsertFileSet(m, basicFileSet(300, 1)))

	require.Len(t, m.FileSets, 3)
	require.Equal(t, int32(100), m.FileSets[0].Fid)
	require.Equal(t, int32(200), m.FileSets[1].Fid)
	require.Equal(t, int32(300), m.FileSets[2].Fid)
	require.NoError(t, m.checkOrdering())
}

func TestUpsertInsertCopiesAreIndependent(t *testing.T) {
	m := New()
	src := basicFileSet(100, 1)
	require.NoError(t, UpsertFileSet(m, src))

	src.Head.CommitId = 99
	require.NotEqual(t, src.Head.CommitId, m.FileSets[0].Head.CommitId, "upsert must deep-copy, not alias")
	require.EqualValues(t, 1, m.FileSets[0].Head.Ref())
}

func TestUpsertMergeOverwritesSameFid(t *testing.T) {
	m := New()
	require.NoError(t, UpsertFileSet(m, basicFileSet(100, 1)))

	next := basicFileSet(100, 1)
	next.Data.CommitId = 2
	next.Data.Size = 4096
	require.NoError(t, UpsertFileSet(m, next))

	require.Len(t, m.FileSets, 1)
	require.EqualValues(t, 2, m.FileSets[0].Data.CommitId)
	require.EqualValues(t, 4096, m.FileSets[0].Data.Size)
}

func TestUpsertSttAppendOneLevel(t *testing.T) {
	m := New()
	require.NoError(t, UpsertFileSet(m, basicFileSet(100, 1)))

	next := basicFileSet(100, 2)
	require.NoError(t, UpsertFileSet(m, next))
	require.Equal(t, 2, m.FileSets[0].NStt)
}

func TestUpsertSttCollapse(t *testing.T) {
	m := New()
	require.NoError(t, UpsertFileSet(m, basicFileSet(100, 4)))

	next := basicFileSet(100, 1)
	next.Stt[0].CommitId = 50
	require.NoError(t, UpsertFileSet(m, next))

	require.Equal(t, 1, m.FileSets[0].NStt)
	require.EqualValues(t, 50, m.FileSets[0].Stt[0].CommitId)
	for i := 1; i < len(m.FileSets[0].Stt); i++ {
		require.Nil(t, m.FileSets[0].Stt[i])
	}
}

func TestUpsertSttIllegalTransitionRejected(t *testing.T) {
	m := New()
	require.NoError(t, UpsertFileSet(m, basicFileSet(100, 1)))

	next := basicFileSet(100, 3)
	err := UpsertFileSet(m, next)
	require.Error(t, err)
	require.Equal(t, KindInvariantViolation, KindOf(err))
}

func TestUpsertRejectsFreshInsertWithNoSttLevels(t *testing.T) {
	m := New()
	err := UpsertFileSet(m, basicFileSet(100, 0))
	require.Error(t, err)
	require.Equal(t, KindInvariantViolation, KindOf(err))
	require.Empty(t, m.FileSets, "a rejected insert must not leave a partial file set behind")
}

func TestUpsertDelFileReplaces(t *testing.T) {
	m := New()
	d1 := descriptor.New(descriptor.Del, 1, 64, 0)
	UpsertDelFile(m, d1)
	require.EqualValues(t, 1, m.Del.CommitId)

	d2 := descriptor.New(descriptor.Del, 2, 64, 0)
	UpsertDelFile(m, d2)
	require.EqualValues(t, 2, m.Del.CommitId)
}
