// +build !windows,!darwin

package z

import (
	"os"

	"golang.org/x/sys/unix"
)

// Mmap memory-maps f read-only for size bytes, used by the Open fast path
// to read CURRENT without a read() syscall per block. Adapted from
// notbadger's z.mmap, trimmed to the read-only case: the manifest store
// never mutates a file through its mapping, only through Store's
// write-temp-then-rename sequence.
func Mmap(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

// Munmap unmaps a slice returned by Mmap.
func Munmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}
