package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStartsAtOneReference(t *testing.T) {
	d := New(Data, 1, 1000, 0)
	require.EqualValues(t, 1, d.Ref())
}

func TestIncrDecrLifecycle(t *testing.T) {
	d := New(Head, 1, 4096, 0)
	d.Incr()
	require.EqualValues(t, 2, d.Ref())

	require.EqualValues(t, 1, d.Decr())
	require.EqualValues(t, 0, d.Decr())
}

func TestDecrBelowZeroPanics(t *testing.T) {
	d := New(Head, 1, 4096, 0)
	d.Decr()
	require.Panics(t, func() { d.Decr() })
}

func TestCloneResetsRefAndIsIndependent(t *testing.T) {
	d := New(Data, 7, 1000, 0)
	d.Incr()
	require.EqualValues(t, 2, d.Ref())

	c := d.Clone()
	require.EqualValues(t, 1, c.Ref())
	require.Equal(t, d.CommitId, c.CommitId)

	c.Incr()
	require.EqualValues(t, 2, d.Ref(), "cloning must not share the original's ref counter")
}

func TestSameLogicalFile(t *testing.T) {
	a := New(Data, 9, 1000, 0)
	b := New(Data, 9, 4096, 0)
	require.True(t, a.SameLogicalFile(b), "size/offset may differ for the same logical file")

	c := New(Data, 10, 1000, 0)
	require.False(t, a.SameLogicalFile(c), "different commit id is a different logical file")
}

func TestSameDisk(t *testing.T) {
	a := FileId{Level: 0, Id: 1}
	b := FileId{Level: 0, Id: 1}
	c := FileId{Level: 1, Id: 1}
	require.True(t, a.SameDisk(b))
	require.False(t, a.SameDisk(c))
}
