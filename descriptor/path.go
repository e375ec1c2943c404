package descriptor

import (
	"fmt"
	"path/filepath"
)

// Resolve produces a stable, deterministic path for a descriptor, given a
// directory (already combined from a tiered-storage root and the vnode's
// tsdb path, per config.Config.Dir) and the file's identity. It is a pure
// function of its inputs — no I/O — per spec.md §4.B.
//
// Adapted from table.NewFilename/table.IdToFileName: the teacher encodes a
// table's (partitionId, fileId) as a fixed-width hex name; this encodes a
// descriptor's (fid, commitId, disk) the same way, with the file kind
// contributing the extension instead of a shared ".sst".
func Resolve(dir string, kind FileKind, disk FileId, fid int32, commitID uint64) string {
	return filepath.Join(dir, FileName(kind, disk, fid, commitID))
}

// FileName builds the on-disk name for one descriptor, split out of Resolve
// so a caller that only needs the name (not a full path) can call it
// directly.
func FileName(kind FileKind, disk FileId, fid int32, commitID uint64) string {
	return fmt.Sprintf("%02X%08X%08X%016X%s",
		disk.Level, disk.Id, uint32(fid), commitID, kind.FileExtension())
}

// ResolveDel produces the path for the manifest-global Del (tombstone) file.
// Unlike Head/Data/Sma/Stt it is not scoped to a fid or disk (spec.md §3:
// "del ... singleton-per-manifest"), only to the commit that created it.
func ResolveDel(dir string, commitID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%016X%s", commitID, Del.FileExtension()))
}

// ManifestFileName and StagingFileName are the two names the manifest store
// (store.go) commits between, named to match spec.md §6 exactly.
const (
	ManifestFileName = "CURRENT"
	StagingFileName  = "CURRENT.t"
)

// ManifestPath and StagingPath resolve the manifest's own two well-known
// paths under dir, the way table/dir.go resolves a table's path under its
// data directory.
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestFileName)
}

func StagingPath(dir string) string {
	return filepath.Join(dir, StagingFileName)
}
