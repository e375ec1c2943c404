// Package config carries the small set of values the manifest subsystem
// needs at Open and when resolving a descriptor's on-disk path. It plays the
// role notbadger's options package plays for the LSM engine, trimmed to
// what a manifest manager (rather than a full KV engine) actually consumes:
// no LoadingMode, Compression or ChecksumVerificationMode, since encoding
// the data files themselves is out of scope here (spec.md §1 Non-goals).
package config

import "path/filepath"

// MaxStt is the compile-time cap on the number of Stt levels a file set may
// carry, matching spec.md §3/§9's MAX_STT constant. It's small enough that a
// fixed-capacity array in FileSet is the right representation rather than a
// slice, per spec.md §9.
const MaxStt = 8

// DefaultPageSize is the page size used, when Config.PageSize is zero, to
// convert a Head/Stt/Del descriptor's logical size into
// the on-disk byte count spec.md §4.I compares against stat() during
// repair. It mirrors the page-aligned allocation unit real tiered storage
// backends use for these file kinds.
const DefaultPageSize = 4096

// Config is constructed once per vnode open and passed by value into the
// manifest subsystem; there is no process-wide singleton (spec.md §9).
type Config struct {
	// Root is the tiered-storage root. Empty means "no tiered storage
	// handle supplied" — spec.md §4.B's primary path, used by tests and
	// single-tier deployments.
	Root string

	// TsdbPath is the path of this vnode's tsdb directory, relative to
	// Root (or absolute if Root is empty).
	TsdbPath string

	// PageSize converts a logical Head/Stt/Del size into bytes for the
	// repair reconciliation in spec.md §4.I. Defaults to DefaultPageSize
	// when zero.
	PageSize uint64
}

// pageSize returns c.PageSize, or DefaultPageSize if unset.
func (c Config) pageSize() uint64 {
	if c.PageSize == 0 {
		return DefaultPageSize
	}
	return c.PageSize
}

// PageBytes converts a logical size (in pages) to a byte count using the
// configured page size.
func (c Config) PageBytes(logicalSize uint64) uint64 {
	return logicalSize * c.pageSize()
}

// Dir returns the absolute directory this vnode's manifest and data files
// live under: Root/TsdbPath, or just TsdbPath if Root is empty (the
// primary-path case spec.md §4.B calls out for tests/dev).
func (c Config) Dir() string {
	if c.Root == "" {
		return c.TsdbPath
	}
	return filepath.Join(c.Root, c.TsdbPath)
}
