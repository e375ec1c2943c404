// +build windows

package vnodedir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// lockFileName is the exclusive-open marker this package uses to emulate
// unix's flock, since Windows has no directory-level advisory lock. It is
// deliberately a different file than the human-readable pid file Handle
// writes in open.go: this one's only job is to be impossible to open twice.
const lockFileName = ".vnode-lock"

// Lock is the Windows analogue of the unix flock-based Lock: exclusively
// opening a dedicated marker file is itself the locking mechanism, since
// Windows already refuses a second O_EXCL open from another process.
type Lock struct {
	file *os.File
	path string
}

// Acquire creates and exclusively holds open dir's lock marker, failing if
// another process already holds it.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, lockFileName)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return nil, errors.Wrapf(err,
			"cannot acquire directory lock on %q, another process is using this vnode", dir)
	}

	return &Lock{file: f, path: path}, nil
}

// Release closes and removes the lock marker.
func (l *Lock) Release() (err error) {
	err = l.file.Close()
	if rmErr := os.Remove(l.path); err == nil {
		err = rmErr
	}
	l.file = nil
	return err
}
