// Package target holds the per-stream write cursor: the atomic position a
// stream task is currently appending to, and the logic for deriving the
// next byte range to request from that position and the resource's known
// size.
package target

import (
	"sync/atomic"

	"rangestream/internal/size"
)

// Target tracks a stream task's write cursor and the chunk size used to
// bound each requested range.
type Target struct {
	pos       atomic.Uint64
	chunkSize uint64
}

// New returns a Target starting at position 0. A zero chunkSize falls
// back to a 1 MiB default range size.
func New(chunkSize uint64) *Target {
	if chunkSize == 0 {
		chunkSize = 1 << 20
	}
	return &Target{chunkSize: chunkSize}
}

// Pos returns the current write cursor.
func (t *Target) Pos() uint64 { return t.pos.Load() }

// Jump repositions the cursor at an arbitrary offset, e.g. after a seek
// or a reconnect following a dropped connection. Callers are responsible
// for propagating the same jump to the backing store via WriterJump.
func (t *Target) Jump(pos uint64) { t.pos.Store(pos) }

// Advance moves the cursor forward by n bytes, the count a write
// actually accepted.
func (t *Target) Advance(n uint64) { t.pos.Add(n) }

// NextRange returns the half-open range [pos, min(pos+chunkSize, end))
// that should be requested next, given the tracker's current knowledge
// of the resource's total size. When the size is unknown the range is a
// full chunk; when it is known and the chunk would run past it, the end
// is clamped to the size.
func (t *Target) NextRange(sz *size.Tracker) (start, end uint64) {
	start = t.pos.Load()
	end = start + t.chunkSize
	if known, ok := sz.Known(); ok && known < end {
		end = known
	}
	return start, end
}
