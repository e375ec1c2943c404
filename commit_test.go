package vnodefs

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliotcourant/vnodefs/descriptor"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, ioutil.WriteFile(path, make([]byte, size), 0600))
}

func TestCommitGrowingDataFile(t *testing.T) {
	dir := t.TempDir()
	disk := descriptor.FileId{Level: 0, Id: 0}

	live := &Manifest{FileSets: []*FileSet{{
		Disk: disk, Fid: 100,
		Head: descriptor.New(descriptor.Head, 1, 4096, 0),
		Data: descriptor.New(descriptor.Data, 1, 1000, 0),
		Sma:  descriptor.New(descriptor.Sma, 1, 256, 0),
		NStt: 1,
		Stt:  [8]*descriptor.FileDescriptor{descriptor.New(descriptor.Stt, 1, 500, 0)},
	}}}

	proposed := &Manifest{FileSets: []*FileSet{{
		Disk: disk, Fid: 100,
		Head: descriptor.New(descriptor.Head, 1, 4096, 0),
		Data: descriptor.New(descriptor.Data, 1, 4096, 0),
		Sma:  descriptor.New(descriptor.Sma, 1, 256, 0),
		NStt: 1,
		Stt:  [8]*descriptor.FileDescriptor{descriptor.New(descriptor.Stt, 1, 500, 0)},
	}}}

	require.NoError(t, Commit1(dir, proposed))
	require.NoError(t, Commit2(dir, live, proposed))

	require.Len(t, live.FileSets, 1)
	require.EqualValues(t, 4096, live.FileSets[0].Data.Size)
	require.EqualValues(t, 1, live.FileSets[0].Head.Ref())
	require.EqualValues(t, 1, live.FileSets[0].Sma.Ref())
}

func TestCommitSttAppend(t *testing.T) {
	dir := t.TempDir()
	disk := descriptor.FileId{Level: 0, Id: 0}

	fs0 := func(nStt int, sttCommits ...uint64) *FileSet {
		var stt [8]*descriptor.FileDescriptor
		for i, c := range sttCommits {
			stt[i] = descriptor.New(descriptor.Stt, c, 500, 0)
		}
		return &FileSet{
			Disk: disk, Fid: 200,
			Head: descriptor.New(descriptor.Head, 1, 4096, 0),
			Data: descriptor.New(descriptor.Data, 1, 1000, 0),
			Sma:  descriptor.New(descriptor.Sma, 1, 256, 0),
			NStt: nStt, Stt: stt,
		}
	}

	live := &Manifest{FileSets: []*FileSet{fs0(1, 10)}}
	proposed := &Manifest{FileSets: []*FileSet{fs0(2, 10, 20)}}

	require.NoError(t, Commit1(dir, proposed))
	require.NoError(t, Commit2(dir, live, proposed))

	got := live.FileSets[0]
	require.Equal(t, 2, got.NStt)
	require.EqualValues(t, 10, got.Stt[0].CommitId)
	require.EqualValues(t, 20, got.Stt[1].CommitId)
	require.EqualValues(t, 1, got.Stt[1].Ref())
}

func TestCommitSttCollapse(t *testing.T) {
	dir := t.TempDir()
	disk := descriptor.FileId{Level: 0, Id: 0}

	oldStt := [8]*descriptor.FileDescriptor{
		descriptor.New(descriptor.Stt, 1, 500, 0),
		descriptor.New(descriptor.Stt, 2, 500, 0),
		descriptor.New(descriptor.Stt, 3, 500, 0),
		descriptor.New(descriptor.Stt, 4, 500, 0),
	}
	live := &Manifest{FileSets: []*FileSet{{
		Disk: disk, Fid: 300,
		Head: descriptor.New(descriptor.Head, 1, 4096, 0),
		Data: descriptor.New(descriptor.Data, 1, 1000, 0),
		Sma:  descriptor.New(descriptor.Sma, 1, 256, 0),
		NStt: 4, Stt: oldStt,
	}}}

	for _, d := range oldStt[:4] {
		p := descriptor.Resolve(dir, descriptor.Stt, disk, 300, d.CommitId)
		writeFile(t, p, 500)
	}

	newStt := [8]*descriptor.FileDescriptor{descriptor.New(descriptor.Stt, 99, 500, 0)}
	proposed := &Manifest{FileSets: []*FileSet{{
		Disk: disk, Fid: 300,
		Head: live.FileSets[0].Head.Clone(),
		Data: live.FileSets[0].Data.Clone(),
		Sma:  live.FileSets[0].Sma.Clone(),
		NStt: 1, Stt: newStt,
	}}}

	require.NoError(t, Commit1(dir, proposed))
	require.NoError(t, Commit2(dir, live, proposed))

	got := live.FileSets[0]
	require.Equal(t, 1, got.NStt)
	require.EqualValues(t, 99, got.Stt[0].CommitId)
	require.EqualValues(t, 1, got.Stt[0].Ref())

	for _, d := range oldStt[:4] {
		p := descriptor.Resolve(dir, descriptor.Stt, disk, 300, d.CommitId)
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "collapsed stt file should have been unlinked")
	}
}

func TestCommitDiskMigration(t *testing.T) {
	dir := t.TempDir()
	oldDisk := descriptor.FileId{Level: 0, Id: 0}
	newDisk := descriptor.FileId{Level: 1, Id: 0}

	oldFS := &FileSet{
		Disk: oldDisk, Fid: 400,
		Head: descriptor.New(descriptor.Head, 1, 4096, 0),
		Data: descriptor.New(descriptor.Data, 1, 1000, 0),
		Sma:  descriptor.New(descriptor.Sma, 1, 256, 0),
		NStt: 1, Stt: [8]*descriptor.FileDescriptor{descriptor.New(descriptor.Stt, 1, 500, 0)},
	}
	live := &Manifest{FileSets: []*FileSet{oldFS}}

	// Commit2 rewrites oldFS in place, so keep the original descriptors.
	oldDescs := oldFS.descriptors()
	for _, d := range oldDescs {
		p := descriptor.Resolve(dir, d.Kind, oldDisk, 400, d.CommitId)
		writeFile(t, p, int(d.Size))
	}

	proposed := &Manifest{FileSets: []*FileSet{{
		Disk: newDisk, Fid: 400,
		Head: descriptor.New(descriptor.Head, 2, 4096, 0),
		Data: descriptor.New(descriptor.Data, 2, 1000, 0),
		Sma:  descriptor.New(descriptor.Sma, 2, 256, 0),
		NStt: 1, Stt: [8]*descriptor.FileDescriptor{descriptor.New(descriptor.Stt, 2, 500, 0)},
	}}}

	require.NoError(t, Commit1(dir, proposed))
	require.NoError(t, Commit2(dir, live, proposed))

	got := live.FileSets[0]
	require.Equal(t, newDisk, got.Disk)
	require.EqualValues(t, 2, got.Head.CommitId)
	require.EqualValues(t, 2, got.Stt[0].CommitId)

	for _, d := range oldDescs {
		p := descriptor.Resolve(dir, d.Kind, oldDisk, 400, d.CommitId)
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "migrated-away file should have been unlinked")
	}
}

func TestCommitCrashBetweenPhases(t *testing.T) {
	dir := t.TempDir()
	proposed := sampleManifest()

	require.NoError(t, Commit1(dir, proposed))
	// Simulate a crash: phase 2 never runs. Reopening must still see proposed.
	_, err := os.Stat(descriptor.StagingPath(dir))
	require.True(t, os.IsNotExist(err))

	loaded, err := LoadManifest(dir)
	require.NoError(t, err)
	require.Len(t, loaded.FileSets, len(proposed.FileSets))
}

func TestCommitRemovesFileSetAbsentFromProposed(t *testing.T) {
	dir := t.TempDir()
	disk := descriptor.FileId{Level: 0, Id: 0}

	fs := &FileSet{
		Disk: disk, Fid: 500,
		Head: descriptor.New(descriptor.Head, 1, 4096, 0),
		Data: descriptor.New(descriptor.Data, 1, 1000, 0),
		Sma:  descriptor.New(descriptor.Sma, 1, 256, 0),
		NStt: 1, Stt: [8]*descriptor.FileDescriptor{descriptor.New(descriptor.Stt, 1, 500, 0)},
	}
	for _, d := range fs.descriptors() {
		p := descriptor.Resolve(dir, d.Kind, disk, 500, d.CommitId)
		writeFile(t, p, int(d.Size))
	}

	live := &Manifest{FileSets: []*FileSet{fs}}
	proposed := &Manifest{}

	require.NoError(t, Commit1(dir, proposed))
	require.NoError(t, Commit2(dir, live, proposed))

	require.Empty(t, live.FileSets)
	for _, d := range fs.descriptors() {
		p := descriptor.Resolve(dir, d.Kind, disk, 500, d.CommitId)
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err))
	}
}

func TestCommitIdempotentNoOp(t *testing.T) {
	dir := t.TempDir()
	live := sampleManifest()
	proposed := sampleManifest()

	require.NoError(t, Commit1(dir, proposed))
	require.NoError(t, Commit2(dir, live, proposed))

	require.Len(t, live.FileSets, 2)
	for _, fs := range live.FileSets {
		for _, d := range fs.descriptors() {
			require.EqualValues(t, 1, d.Ref())
		}
	}
}

func TestCommitDelMonotonicityViolation(t *testing.T) {
	dir := t.TempDir()
	live := &Manifest{Del: descriptor.New(descriptor.Del, 1, 64, 0)}
	proposed := &Manifest{}

	require.NoError(t, Commit1(dir, proposed))
	err := Commit2(dir, live, proposed)
	require.Error(t, err)
	require.Equal(t, KindInvariantViolation, KindOf(err))
}
