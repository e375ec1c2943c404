// Package vnodefs implements the file-set manifest manager of a per-vnode
// TSDB: the authoritative record of which immutable data files belong to
// the engine, committed atomically, reference-counted for safe concurrent
// reads, and reconciled against the filesystem at open.
//
// The package plays the role notbadger's root package (db.go, manifest.go,
// levels.go) plays for a full LSM engine, narrowed to the one concern that
// survives here: which files currently exist, not what is inside them.
// Query execution, memtable structure, write-ahead logging, replication and
// schema management are out of scope (see DESIGN.md for the teacher modules
// that covered those and why they were not carried forward).
package vnodefs

import (
	"sort"

	"github.com/elliotcourant/vnodefs/config"
	"github.com/elliotcourant/vnodefs/descriptor"
)

// FileSet is one time-partition's bundle of files: exactly one Head, Data
// and Sma descriptor, plus a bounded array of Stt descriptors. Mirrors
// spec.md §3's FileSet.
type FileSet struct {
	Disk descriptor.FileId
	Fid  int32

	Head *descriptor.FileDescriptor
	Data *descriptor.FileDescriptor
	Sma  *descriptor.FileDescriptor

	Stt  [config.MaxStt]*descriptor.FileDescriptor
	NStt int
}

// sttLevels returns the live slice of this file set's Stt descriptors.
func (fs *FileSet) sttLevels() []*descriptor.FileDescriptor {
	return fs.Stt[:fs.NStt]
}

// clone returns a deep copy of fs: a fresh FileSet value whose descriptors
// are themselves fresh clones (ref=1), the way spec.md §4.G's Upsert and
// §4.H's ADD_NEW describe "insert a deep copy."
func (fs *FileSet) clone() *FileSet {
	c := &FileSet{Disk: fs.Disk, Fid: fs.Fid, NStt: fs.NStt}
	if fs.Head != nil {
		c.Head = fs.Head.Clone()
	}
	if fs.Data != nil {
		c.Data = fs.Data.Clone()
	}
	if fs.Sma != nil {
		c.Sma = fs.Sma.Clone()
	}
	for i := 0; i < fs.NStt; i++ {
		c.Stt[i] = fs.Stt[i].Clone()
	}
	return c
}

// descriptors returns every descriptor this file set directly owns, for
// ref bookkeeping (Snapshot, Unref, REMOVE_OLD).
func (fs *FileSet) descriptors() []*descriptor.FileDescriptor {
	out := make([]*descriptor.FileDescriptor, 0, 3+fs.NStt)
	if fs.Head != nil {
		out = append(out, fs.Head)
	}
	if fs.Data != nil {
		out = append(out, fs.Data)
	}
	if fs.Sma != nil {
		out = append(out, fs.Sma)
	}
	out = append(out, fs.sttLevels()...)
	return out
}

// Manifest is the top-level, authoritative state described in spec.md §3:
// the global Del tombstone (if any) plus every file set, sorted strictly
// ascending by Fid.
type Manifest struct {
	Del      *descriptor.FileDescriptor
	FileSets []*FileSet
}

// New returns an empty manifest, the state a fresh vnode starts from
// (spec.md §4.I scenario 1, "Fresh open").
func New() *Manifest {
	return &Manifest{}
}

// find returns the index of the file set with the given fid, and whether it
// was found. Manifest.FileSets is always kept sorted by Fid, so this is a
// binary search — the search upsert.go uses to place a file set.
func (m *Manifest) find(fid int32) (int, bool) {
	i := sort.Search(len(m.FileSets), func(i int) bool {
		return m.FileSets[i].Fid >= fid
	})
	if i < len(m.FileSets) && m.FileSets[i].Fid == fid {
		return i, true
	}
	return i, false
}

// checkOrdering verifies the strictly-ascending-by-Fid invariant spec.md §3
// and §8 require of every manifest. It's cheap enough to run after any
// mutating operation in tests, the way levelHandler.validate() does for the
// teacher's key ranges.
func (m *Manifest) checkOrdering() error {
	for i := 1; i < len(m.FileSets); i++ {
		if m.FileSets[i-1].Fid >= m.FileSets[i].Fid {
			return errInvariantf("manifest: file sets not strictly ascending by fid at index %d (%d >= %d)",
				i, m.FileSets[i-1].Fid, m.FileSets[i].Fid)
		}
	}
	return nil
}
