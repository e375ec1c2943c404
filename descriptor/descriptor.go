// Package descriptor holds the value types for a single physical file
// belonging to the manifest (spec.md §4.A) and the atomically ref-counted
// handle that governs when that file is actually unlinked (spec.md §4.E).
//
// This is the direct descendant of notbadger's table package: where table.go
// ref-counted an open *Table so readers could keep using an sstable that
// compaction had already superseded, FileDescriptor ref-counts a file
// identity so readers holding a Snapshot can keep using a file the commit
// engine has already replaced in the live manifest. The counting rule is
// unchanged from the teacher: construction starts the count at 1, and the
// transition from 1 to 0 is what triggers the physical unlink.
package descriptor

import (
	"fmt"
	"sync/atomic"

	"github.com/elliotcourant/vnodefs/internal/z"
)

// FileKind identifies which role a file plays within a FileSet, or whether
// it is the manifest-global tombstone file. Head, Data and Sma are
// singleton-per-file-set; Stt is a bounded array; Del is singleton-per-manifest.
type FileKind uint8

const (
	Head FileKind = iota
	Data
	Sma
	Stt
	Del
)

func (k FileKind) String() string {
	switch k {
	case Head:
		return "head"
	case Data:
		return "data"
	case Sma:
		return "sma"
	case Stt:
		return "stt"
	case Del:
		return "del"
	default:
		return fmt.Sprintf("FileKind(%d)", uint8(k))
	}
}

// FileExtension is the on-disk suffix for a file of this kind, used by
// Resolve (path.go) the way table.TableFileExtension is used by
// table.NewFilename.
func (k FileKind) FileExtension() string {
	switch k {
	case Head:
		return ".head"
	case Data:
		return ".data"
	case Sma:
		return ".sma"
	case Stt:
		return ".stt"
	case Del:
		return ".del"
	default:
		return ".bin"
	}
}

// FileId identifies a storage tier and a disk within that tier. Two FileIds
// are the "same disk" iff both fields are equal (spec.md §3).
type FileId struct {
	Level uint8
	Id    uint32
}

// SameDisk reports whether fid and other identify the same disk.
func (fid FileId) SameDisk(other FileId) bool {
	return fid.Level == other.Level && fid.Id == other.Id
}

// FileDescriptor is the persistable identity of one physical file, plus the
// atomic, non-serialized reference count that governs its lifetime.
type FileDescriptor struct {
	Kind FileKind

	// CommitId is monotonically issued at the flush/compaction that created
	// this file; it distinguishes two files that happen to share (fid, kind).
	CommitId uint64

	// Size is the authoritative logical length: bytes for Data/Sma, pages
	// for Head/Stt/Del. At open the on-disk size of a Data/Sma file may
	// legitimately exceed it (an unapplied tail), while a Head/Stt/Del file
	// must be exactly Size times the configured page size.
	Size uint64

	// Offset is a kind-specific header offset.
	Offset uint64

	ref int32
}

// New constructs a descriptor with ref=1, the state every descriptor starts
// in whether it came from the codec or a commit proposal. A snapshot does not
// construct descriptors: it shares the live ones and bumps their ref.
func New(kind FileKind, commitID, size, offset uint64) *FileDescriptor {
	return &FileDescriptor{
		Kind:     kind,
		CommitId: commitID,
		Size:     size,
		Offset:   offset,
		ref:      1,
	}
}

// Clone returns a deep, independent copy of d, ref reset to 1. Used by
// Upsert and Commit whenever spec.md calls for "a new descriptor by
// value-copy."
func (d *FileDescriptor) Clone() *FileDescriptor {
	c := *d
	c.ref = 1
	return &c
}

// SameLogicalFile reports whether d and other are, per spec.md §4.A, "the
// same logical file": equal kind and commit id (disk is compared
// separately by the caller, since it lives on the owning FileSet rather
// than the descriptor — see commit.go). Size and offset are allowed to
// differ (e.g. a Data file that has grown in place).
func (d *FileDescriptor) SameLogicalFile(other *FileDescriptor) bool {
	return d.Kind == other.Kind && d.CommitId == other.CommitId
}

// Ref returns the current reference count. Intended for tests and
// diagnostics; production code should not branch on a value it could race
// against.
func (d *FileDescriptor) Ref() int32 {
	return atomic.LoadInt32(&d.ref)
}

// Incr bumps the reference count. The caller must already hold a reference
// (ref >= 1); calling Incr on a descriptor that has already reached zero is
// a use-after-free bug, not a runtime condition, and panics rather than
// silently resurrecting the descriptor.
func (d *FileDescriptor) Incr() {
	n := atomic.AddInt32(&d.ref, 1)
	z.AssertTruef(n > 1, "descriptor: Incr observed ref <= 1 after increment for %s file, commit %d",
		d.Kind, d.CommitId)
}

// Decr subtracts one from the reference count and returns the
// post-decrement value. A return of 0 means the caller is the last holder
// and must resolve the descriptor's path and unlink the file. Decr never
// allows ref to fall below zero; doing so is a bug and panics immediately,
// the same way notbadger's Throttle.Done panics on a Do/Done mismatch.
func (d *FileDescriptor) Decr() int32 {
	n := atomic.AddInt32(&d.ref, -1)
	z.AssertTruef(n >= 0, "descriptor: ref decremented below zero for %s file, commit %d", d.Kind, d.CommitId)
	return n
}
