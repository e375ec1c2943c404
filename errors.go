package vnodefs

import "github.com/pkg/errors"

// Kind classifies a manifest operation failure into one of the four buckets
// spec.md §7 defines. Callers that need to decide "retry", "crash" or
// "refuse to start" switch on Kind rather than string-matching an error,
// the way the teacher's ErrBadManifestChecksum/ErrBadManifestVersion
// sentinels let helpOpenOrCreateManifestFile branch on failure type.
type Kind uint8

const (
	// KindIo covers any syscall failure: open, read, write, fsync, rename,
	// stat, unlink, truncate.
	KindIo Kind = iota
	// KindCorrupted covers a checksum mismatch or a size reconciliation
	// that cannot be repaired — operator intervention is required.
	KindCorrupted
	// KindOutOfMemory covers allocation failure.
	KindOutOfMemory
	// KindInvariantViolation covers a broken caller contract: a bug, not a
	// runtime condition. errInvariantf below builds it as an ordinary
	// returned error (see commit.go's MERGE and upsert.go's stt transition
	// checks); only the reference counter's own use-after-free/double-free
	// checks panic.
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "Io"
	case KindCorrupted:
		return "Corrupted"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindInvariantViolation:
		return "InvariantViolation"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with the Kind the caller needs to decide
// how to react, per spec.md §7's propagation rules.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindIo as the conservative default for
// an error this package didn't originate (e.g. an unexpected os error that
// slipped through without being wrapped).
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindIo
}

func wrapErr(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func errIo(err error, format string, args ...interface{}) error {
	return wrapErr(KindIo, errors.Wrapf(err, format, args...))
}

func errCorrupted(format string, args ...interface{}) error {
	return wrapErr(KindCorrupted, errors.Errorf(format, args...))
}

func errOutOfMemory(err error) error {
	return wrapErr(KindOutOfMemory, err)
}

// errInvariantf builds an InvariantViolation error for the public Upsert/
// Commit operations (spec.md §6's table lists InvariantViolation as one of
// their ordinary error returns, so these return rather than panic). Genuine
// use-after-free / double-free bugs in the reference counter itself panic
// instead (descriptor.FileDescriptor.Incr/Decr), matching the teacher's own
// split: KeyRegistry.dataKey panics on a caller passing an unknown
// partition/key id (a bug no caller should hit), while manifest.go's
// applyManifestChange returns an ordinary error for a malformed change set
// (a condition the caller is expected to check for).
func errInvariantf(format string, args ...interface{}) error {
	return &Error{Kind: KindInvariantViolation, Err: errors.Errorf(format, args...)}
}
