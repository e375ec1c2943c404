// +build !windows

// Package vnodedir enforces spec.md §5's "concurrent writers are disallowed"
// rule with an advisory flock on the vnode's tsdb directory, adapted from
// notbadger's dir_unix.go acquireDirectoryLock/directoryLockGuard. Unlike the
// teacher's directoryLockGuard, this package owns only the lock itself — the
// pid-file bookkeeping the teacher bundled into the same type is a separate,
// purely advisory concern that belongs to whatever owns the vnode's open
// lifecycle (see Handle in open.go), not to the locking primitive. This
// package also never opens read-only: every caller in this repo is a writer,
// so the teacher's readOnly branch (LOCK_SH) has no exerciser and is dropped
// rather than carried forward unused.
package vnodedir

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Lock is an exclusive flock on a vnode's tsdb directory, held open for the
// life of the vnode.
type Lock struct {
	dir *os.File
}

// Acquire flocks dir exclusively and non-blocking, failing immediately
// rather than waiting if another process already holds it.
func Acquire(dir string) (*Lock, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open directory: %q", dir)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err,
			"cannot acquire directory lock on %q, another process is using this vnode", dir)
	}

	return &Lock{dir: f}, nil
}

// Release drops the flock and closes the directory handle.
func (l *Lock) Release() error {
	err := l.dir.Close()
	l.dir = nil
	return err
}
