// +build windows

package z

import (
	"os"
	"syscall"
	"unsafe"
)

// Mmap memory-maps f read-only for size bytes. See mmap_unix.go.
func Mmap(f *os.File, size int64) ([]byte, error) {
	handler, err := syscall.CreateFileMapping(syscall.Handle(f.Fd()), nil,
		uint32(syscall.PAGE_READONLY), uint32(size>>32), uint32(size)&0xffffffff, nil)
	if err != nil {
		return nil, os.NewSyscallError("CreateFileMapping", err)
	}
	defer syscall.CloseHandle(handler)

	addr, err := syscall.MapViewOfFile(handler, uint32(syscall.FILE_MAP_READ), 0, 0, uintptr(size))
	if addr == 0 {
		return nil, os.NewSyscallError("MapViewOfFile", err)
	}

	sl := struct {
		addr uintptr
		len  int
		cap  int
	}{addr, int(size), int(size)}
	return *(*[]byte)(unsafe.Pointer(&sl)), nil
}

// Munmap unmaps a slice returned by Mmap.
func Munmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return syscall.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0])))
}
