// Package z collects the small filesystem and assertion helpers the manifest
// subsystem leans on, the way notbadger's own z package backed db.go,
// dir_unix.go and manifest.go. It intentionally carries only the pieces
// that still have a caller once memtables, the value log and transactions
// are out of scope: file open helpers, directory fsync, and the assert
// helper that turns a broken reference-counting contract into a panic
// instead of quietly corrupting the manifest.
package z

import (
	"os"

	rz "github.com/dgraph-io/ristretto/z"
	"github.com/pkg/errors"
)

const (
	// dataSyncFileFlag is the open flag the Sync option adds. It is 0 on
	// every platform, so no O_DSYNC is set; durability comes from FileSync.
	dataSyncFileFlag = 0x0
)

const (
	// Sync requests a data-sync open; it adds dataSyncFileFlag, which is
	// currently 0, so it does not change how the file is opened.
	Sync = 1 << iota
	// ReadOnly opens the underlying file read-only.
	ReadOnly
)

// OpenExistingFile opens an existing file, erroring if it is missing.
func OpenExistingFile(fileName string, flags uint32) (*os.File, error) {
	openFlags := os.O_RDWR
	if flags&ReadOnly != 0 {
		openFlags = os.O_RDONLY
	}
	if flags&Sync != 0 {
		openFlags |= dataSyncFileFlag
	}
	return os.OpenFile(fileName, openFlags, 0)
}

// OpenTruncFile opens fileName with O_RDWR|O_CREATE|O_TRUNC, the shape every
// durable-publish path (store.go) uses to write a staging file from scratch.
func OpenTruncFile(fileName string, sync bool) (*os.File, error) {
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if sync {
		flags |= dataSyncFileFlag
	}
	return os.OpenFile(fileName, flags, 0600)
}

// FileSync fsyncs f, wrapping the error with the file name the way the rest
// of this package wraps I/O failures.
func FileSync(f *os.File) error {
	return Wrapf(f.Sync(), "while syncing %q", f.Name())
}

// SyncDir fsyncs a directory's own inode so a preceding create/rename/unlink
// of one of its entries is durable, not just the entry's own file content.
// Adapted from notbadger's dir_unix.go syncDir, which the manifest store
// calls after every rename-over-final publish.
func SyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "while opening directory: %q", dir)
	}
	err = FileSync(f)
	closeErr := f.Close()
	if err != nil {
		return errors.Wrapf(err, "while syncing directory: %q", dir)
	}
	return errors.Wrapf(closeErr, "while closing directory: %q", dir)
}

// Wrapf annotates err with a formatted message prefix if it is non-nil, and
// returns nil otherwise. It exists so call sites can write
// `return z.Wrapf(err, "...")` without an intervening nil check, the way
// every teacher I/O path does.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// AssertTruef panics with a formatted message if cond is false. Used at the
// boundary between "a caller broke the contract" (InvariantViolation, a bug)
// and "the disk broke a promise" (Corrupted/Io, a runtime condition).
func AssertTruef(cond bool, format string, args ...interface{}) {
	rz.AssertTruef(cond, format, args...)
}
