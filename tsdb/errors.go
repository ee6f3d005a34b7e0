package tsdb

import (
	"errors"
	"fmt"
)

// Sentinel errors matching spec §7's error kinds that carry no
// parameters. Wrapped with fmt.Errorf("%w", ...) at the call site when
// more context is useful.
var (
	// ErrOutOfPages is returned by PageManager allocation when the file
	// has exhausted either its physical pages or its logical header
	// slots. Engine.Ingest returns it to its caller; no new PageManager
	// is opened for the range.
	ErrOutOfPages = errors.New("tsdb: out of pages")

	// ErrOutOfMemory is the fatal out-of-memory error kind. Pool never
	// returns it: its sync.Pool-backed Get allocates on demand.
	ErrOutOfMemory = errors.New("tsdb: out of memory")

	// ErrOutOfOrder is returned by a version>=1 Compressor when a
	// datapoint's timestamp is earlier than the last one it holds.
	// Non-fatal: the engine reroutes the point to an OOO page.
	ErrOutOfOrder = errors.New("tsdb: datapoint out of order")

	// ErrCorrupt indicates a header self-check failure on open. The
	// caller should log, quarantine the file, and continue with the
	// remaining files rather than abort the whole engine.
	ErrCorrupt = errors.New("tsdb: corrupt header")

	// ErrShutdownInProgress is returned by any operation attempted
	// after Shutdown has been called, with a retryable hint for the
	// caller.
	ErrShutdownInProgress = errors.New("tsdb: shutdown in progress, retry later")

	// ErrCompacted is returned by an allocation attempt against a file
	// that has already been compacted; no further allocations are
	// permitted on it.
	ErrCompacted = errors.New("tsdb: file is compacted, no further allocation permitted")
)

// VersionMismatchError is returned when a file's major_version does not
// match what this build expects. Fatal: abort open.
type VersionMismatchError struct {
	Major uint8
	Want  uint8
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("tsdb: major version mismatch: file has %d, expected %d", e.Major, e.Want)
}

// ResolutionMismatchError is returned when a file's millisecond flag
// does not match the engine's configured timestamp resolution. Fatal:
// abort open.
type ResolutionMismatchError struct {
	FileIsMillisecond   bool
	ConfigIsMillisecond bool
}

func (e *ResolutionMismatchError) Error() string {
	return fmt.Sprintf("tsdb: timestamp resolution mismatch: file millisecond=%v, config millisecond=%v",
		e.FileIsMillisecond, e.ConfigIsMillisecond)
}

// IOError wraps an underlying I/O failure (mmap, msync, ftruncate,
// open, ...). Transient errors (EAGAIN) are recovered where the
// caller can retry; everything else surfaces to the caller boundary.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("tsdb: io: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
