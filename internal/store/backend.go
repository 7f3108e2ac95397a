// Package store implements the interchangeable byte-storage backends
// (limited memory, unlimited memory, disk) and the switchable store that
// lets a stream migrate between them without interrupting readers.
package store

import (
	"errors"
	"math"

	"rangestream/internal/rangeset"
)

// ErrSeekInProgress is returned by WriteAt when pos does not match the
// end of the currently active range. It is not surfaced to callers as a
// stream error: the writer retries once the pending seek settles.
var ErrSeekInProgress = errors.New("store: seek in progress")

// MaxSupportedRanges is the sentinel NSupportedRanges value for backends
// with no practical bound on distinct ranges (unlimited memory).
const MaxSupportedRanges = math.MaxInt32

// Backend is the uniform operation set shared by LimitedMem, UnlimitedMem
// and Disk. A Go interface stands in for the source repository's tagged
// enum of storage variants, since all three share this exact contract.
type Backend interface {
	// WriteAt appends buf at pos, the offset immediately following the
	// active range (or the start of a freshly jumped range). Returns the
	// number of bytes actually written, which may be less than len(buf)
	// when a Limited capacity bound is nearly exhausted.
	WriteAt(buf []byte, pos uint64) (int, error)

	// ReadAt performs a non-blocking copy of bytes covering pos into buf.
	// Caller must have already verified pos is present in Ranges().
	ReadAt(buf []byte, pos uint64) int

	// Ranges returns the set of byte ranges currently held.
	Ranges() rangeset.Set

	// GaplessFromTill reports whether [pos, end) is fully covered.
	GaplessFromTill(pos, end uint64) bool

	// WriterJump closes the active range and opens a new, empty one
	// starting at to.
	WriterJump(to uint64)

	// NSupportedRanges hints how many disjoint ranges this backend can
	// hold efficiently; migration logic uses it to bound copy work.
	NSupportedRanges() int

	// Close releases any backend resources (file handles, etc).
	Close() error
}
