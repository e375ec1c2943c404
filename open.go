package vnodefs

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/elliotcourant/timber"

	"github.com/elliotcourant/vnodefs/config"
	"github.com/elliotcourant/vnodefs/descriptor"
	"github.com/elliotcourant/vnodefs/internal/vnodedir"
	"github.com/elliotcourant/vnodefs/internal/z"
)

// pidFileName is the operator-facing convenience file Handle writes its pid
// into on Open, independent of whatever mechanism vnodedir uses to actually
// enforce single-writer exclusivity.
const pidFileName = "LOCK"

// Handle is what Open returns alongside the live manifest: the directory
// lock that enforces spec.md §5's single-writer rule, released by Close.
// Commit1/Commit2/Snapshot/Unref all take the directory path directly
// rather than through Handle, since they're called far more often than
// Open/Close and a bare string avoids a pointer indirection on every call.
type Handle struct {
	Dir     string
	Config  config.Config
	lock    *vnodedir.Lock
	pidPath string
}

// Close removes the pid file Open wrote and releases the directory lock. It
// does not touch the manifest itself; the caller's live Manifest value
// remains usable in memory, matching spec.md §6's close(M) having no output
// and no unlink side effects of its own.
func (h *Handle) Close() (err error) {
	err = os.Remove(h.pidPath)
	if lockErr := h.lock.Release(); err == nil {
		err = lockErr
	}
	return err
}

// Open loads (or creates) the manifest for the vnode at cfg.Dir(), per
// spec.md §4.I. rollback selects the policy for an interrupted commit: true
// deletes a leftover CURRENT.t (discarding an in-flight phase 1 that never
// finished renaming); false renames it over CURRENT (the staging file was
// written but its rename never happened, so the proposed manifest is rolled
// forward as the new live state).
func Open(cfg config.Config, rollback bool) (*Manifest, *Handle, error) {
	dir := cfg.Dir()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, errIo(err, "open: creating directory %q", dir)
	}

	lock, err := vnodedir.Acquire(dir)
	if err != nil {
		return nil, nil, errIo(err, "open: acquiring lock on %q", dir)
	}

	pidPath := filepath.Join(dir, pidFileName)
	if err := ioutil.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0666); err != nil {
		_ = lock.Release()
		return nil, nil, errIo(err, "open: writing pid file %q", pidPath)
	}

	m, err := openLocked(dir, cfg, rollback)
	if err != nil {
		_ = os.Remove(pidPath)
		_ = lock.Release()
		return nil, nil, err
	}

	return m, &Handle{Dir: dir, Config: cfg, lock: lock, pidPath: pidPath}, nil
}

func openLocked(dir string, cfg config.Config, rollback bool) (*Manifest, error) {
	exists, err := manifestExists(dir)
	if err != nil {
		return nil, err
	}

	if !exists {
		timber.Infof("vnodefs: no manifest found in %q, initializing fresh vnode", dir)
		m := New()
		if err := StoreManifest(dir, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	staging, err := stagingExists(dir)
	if err != nil {
		return nil, err
	}

	if staging {
		stagingPath := descriptor.StagingPath(dir)
		if rollback {
			timber.Infof("vnodefs: rolling back interrupted commit in %q", dir)
			if err := os.Remove(stagingPath); err != nil {
				return nil, errIo(err, "open: removing staging file %q", stagingPath)
			}
		} else {
			timber.Infof("vnodefs: rolling forward interrupted commit in %q", dir)
			if err := os.Rename(stagingPath, descriptor.ManifestPath(dir)); err != nil {
				return nil, errIo(err, "open: promoting staging file %q", stagingPath)
			}
		}
	}

	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	if err := reconcile(dir, cfg, m); err != nil {
		return nil, err
	}

	return m, nil
}

// reconcileConcurrency bounds how many file sets are reconciled against the
// filesystem at once. Picked the way levels.go picks 3 for opening tables:
// enough concurrent syscalls to saturate disk throughput without spawning a
// goroutine per file set on a vnode with thousands of them.
const reconcileConcurrency = 3

// reconcile validates every descriptor in m against the filesystem, per
// spec.md §4.I step 6: Head/Stt/Del must match the page-converted logical
// size exactly; Data/Sma may have a longer on-disk tail (an unapplied
// write), which is truncated back to the logical size, but must never be
// shorter. File sets are independent of one another, so reconciliation runs
// with a bounded number of them in flight at once, the way the teacher's
// openTables throttles concurrent table opens across partitions.
func reconcile(dir string, cfg config.Config, m *Manifest) error {
	if m.Del != nil {
		path := descriptor.ResolveDel(dir, m.Del.CommitId)
		if err := reconcileExact(path, descriptor.Del, cfg.PageBytes(m.Del.Size)); err != nil {
			return err
		}
	}

	return z.BoundedEach(reconcileConcurrency, len(m.FileSets), func(i int) error {
		return reconcileFileSet(dir, cfg, m.FileSets[i])
	})
}

func reconcileFileSet(dir string, cfg config.Config, fs *FileSet) error {
	headPath := descriptor.Resolve(dir, descriptor.Head, fs.Disk, fs.Fid, fs.Head.CommitId)
	if err := reconcileExact(headPath, descriptor.Head, cfg.PageBytes(fs.Head.Size)); err != nil {
		return err
	}

	dataPath := descriptor.Resolve(dir, descriptor.Data, fs.Disk, fs.Fid, fs.Data.CommitId)
	if err := reconcileTail(dataPath, descriptor.Data, fs.Data.Size); err != nil {
		return err
	}

	smaPath := descriptor.Resolve(dir, descriptor.Sma, fs.Disk, fs.Fid, fs.Sma.CommitId)
	if err := reconcileTail(smaPath, descriptor.Sma, fs.Sma.Size); err != nil {
		return err
	}

	for i := 0; i < fs.NStt; i++ {
		d := fs.Stt[i]
		sttPath := descriptor.Resolve(dir, descriptor.Stt, fs.Disk, fs.Fid, d.CommitId)
		if err := reconcileExact(sttPath, descriptor.Stt, cfg.PageBytes(d.Size)); err != nil {
			return err
		}
	}

	return nil
}

// reconcileExact requires the file at path to be exactly wantSize bytes.
func reconcileExact(path string, kind descriptor.FileKind, wantSize uint64) error {
	info, err := os.Stat(path)
	if err != nil {
		return errIo(err, "open: statting %s file %q", kind, path)
	}
	if uint64(info.Size()) != wantSize {
		return errCorrupted("open: %s file %q is %d bytes, expected exactly %d",
			kind, path, info.Size(), wantSize)
	}
	return nil
}

// reconcileTail allows the file at path to be at least logicalSize bytes,
// truncating any surplus tail back to logicalSize. A file shorter than
// logicalSize is corruption: data the manifest claims exists is missing.
func reconcileTail(path string, kind descriptor.FileKind, logicalSize uint64) error {
	info, err := os.Stat(path)
	if err != nil {
		return errIo(err, "open: statting %s file %q", kind, path)
	}

	actual := uint64(info.Size())
	switch {
	case actual < logicalSize:
		return errCorrupted("open: %s file %q is %d bytes, shorter than logical size %d",
			kind, path, actual, logicalSize)
	case actual > logicalSize:
		if err := os.Truncate(path, int64(logicalSize)); err != nil {
			return errIo(err, "open: truncating %s file %q back to %d bytes", kind, path, logicalSize)
		}
	}
	return nil
}
