package vnodefs

import (
	"os"

	"github.com/elliotcourant/timber"

	"github.com/elliotcourant/vnodefs/descriptor"
)

// Snapshot produces a point-in-time view of live that shares descriptors
// with it (spec.md §4.F): every descriptor reachable from live gets an
// extra ref, and the returned Manifest owns an independent FileSets slice
// (and Del pointer field) so the writer can keep mutating live's own slice
// without disturbing a reader holding this value. Mirrors the way a
// notbadger iterator takes its own reference on a *Table via
// IncrementReference rather than copying the table's contents.
func Snapshot(dir string, live *Manifest) *Manifest {
	snap := &Manifest{
		FileSets: make([]*FileSet, len(live.FileSets)),
	}

	if live.Del != nil {
		live.Del.Incr()
		snap.Del = live.Del
	}

	for i, fs := range live.FileSets {
		for _, d := range fs.descriptors() {
			d.Incr()
		}
		// Copy the FileSet itself: a MERGE in Commit2 rewrites live's FileSet
		// in place, and the snapshot must keep the descriptors it took refs on.
		c := *fs
		snap.FileSets[i] = &c
	}

	return snap
}

// Unref releases snap's hold on every descriptor it reaches (spec.md §4.F).
// A descriptor whose ref reaches zero here means snap was the last holder:
// its file is resolved via dir and unlinked. I/O failures during unlink are
// collected and returned after every descriptor has been processed, rather
// than aborting partway — Unref must not leave some descriptors dropped and
// others still refcounted, matching phase 2's "completes unconditionally"
// rule in commit.go.
func Unref(dir string, snap *Manifest) error {
	var firstErr error
	note := func(err error) {
		if err == nil {
			return
		}
		timber.Warningf("vnodefs: unref unlink failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if snap.Del != nil {
		if snap.Del.Decr() == 0 {
			note(unlinkDel(dir, snap.Del))
		}
	}

	for _, fs := range snap.FileSets {
		for _, d := range fs.descriptors() {
			if d.Decr() == 0 {
				note(unlinkDescriptor(dir, fs, d))
			}
		}
	}

	return firstErr
}

// unlinkDescriptor removes the physical file backing d, resolving its path
// from fs (the file set that owned it at the time its ref dropped to zero),
// per spec.md §4.H's "resolve path using the old file set's disk/fid."
func unlinkDescriptor(dir string, fs *FileSet, d *descriptor.FileDescriptor) error {
	path := descriptor.Resolve(dir, d.Kind, fs.Disk, fs.Fid, d.CommitId)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errIo(err, "unlink: removing %q", path)
	}
	return nil
}

func unlinkDel(dir string, d *descriptor.FileDescriptor) error {
	path := descriptor.ResolveDel(dir, d.CommitId)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errIo(err, "unlink: removing %q", path)
	}
	return nil
}
