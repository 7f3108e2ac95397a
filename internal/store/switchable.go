package store

import (
	"context"
	"sync"

	"rangestream/internal/rangeset"
	"rangestream/internal/rangewatch"
)

// Switchable presents a single logical backend to readers and writers
// while allowing the backend underneath to be migrated live. During a
// migration it holds both the outgoing (prev) and incoming (curr)
// backend; reads fan across both so a read straddling the migration
// boundary returns bytes from each as needed.
type Switchable struct {
	mu sync.RWMutex

	curr Backend
	prev Backend

	writePos    uint64
	lastReadPos uint64

	watch *rangewatch.Watch
}

// NewSwitchable wraps an already-constructed backend.
func NewSwitchable(initial Backend) *Switchable {
	return &Switchable{curr: initial, watch: rangewatch.New()}
}

// Watch returns the range-watch broadcaster readers subscribe to.
func (s *Switchable) Watch() *rangewatch.Watch { return s.watch }

// WriteAt appends to the current backend and publishes the new range to
// any blocked readers.
func (s *Switchable) WriteAt(buf []byte, pos uint64) (int, error) {
	s.mu.Lock()
	n, err := s.curr.WriteAt(buf, pos)
	if n > 0 {
		s.writePos = pos + uint64(n)
	}
	s.mu.Unlock()
	if n > 0 {
		s.watch.Publish(rangeset.Range{Start: pos, End: pos + uint64(n)})
	}
	return n, err
}

// ReadAt consults prev first, then curr, concatenating partial fills so
// a read straddling the migration boundary is satisfied from both.
func (s *Switchable) ReadAt(buf []byte, pos uint64) int {
	s.mu.RLock()
	prev, curr := s.prev, s.curr
	s.mu.RUnlock()

	n := 0
	if prev != nil {
		n = prev.ReadAt(buf, pos)
	}
	if n < len(buf) {
		n += curr.ReadAt(buf[n:], pos+uint64(n))
	}
	return n
}

// Ranges returns the union of ranges held by prev (if migrating) and curr.
func (s *Switchable) Ranges() rangeset.Set {
	s.mu.RLock()
	prev, curr := s.prev, s.curr
	s.mu.RUnlock()

	var out rangeset.Set
	if prev != nil {
		for _, r := range prev.Ranges().Ranges() {
			out.Add(r)
		}
	}
	for _, r := range curr.Ranges().Ranges() {
		out.Add(r)
	}
	return out
}

// GaplessFromTill reports whether the union of backends covers [pos,end)
// without a gap.
func (s *Switchable) GaplessFromTill(pos, end uint64) bool {
	set := s.Ranges()
	return set.GaplessFromTill(pos, end)
}

// WriterJump repositions the active write cursor, discarding the
// previous active range on the current backend.
func (s *Switchable) WriterJump(to uint64) {
	s.mu.Lock()
	s.curr.WriterJump(to)
	s.writePos = to
	s.mu.Unlock()
	s.watch.Publish(rangeset.Range{Start: to, End: to})
}

// SetLastReadPos records consumer progress. This both lets LimitedMem
// backends know which bytes are safe to evict and drives Phase 3 of an
// in-flight migration: once the reader has consumed past the last range
// present in prev, prev is released.
func (s *Switchable) SetLastReadPos(pos uint64) {
	s.mu.Lock()
	if pos > s.lastReadPos {
		s.lastReadPos = pos
	}
	if lm, ok := s.curr.(*LimitedMem); ok {
		lm.SetLastReadPos(pos)
	}
	var releasing Backend
	if s.prev != nil {
		if last, ok := s.prev.Ranges().Last(); ok && pos >= last.End {
			releasing = s.prev
			s.prev = nil
		}
	}
	s.mu.Unlock()
	if releasing != nil {
		_ = releasing.Close()
	}
}

// WritePos returns the absolute offset the writer will append to next.
func (s *Switchable) WritePos() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writePos
}

// LastReadPos returns the last position the consumer reported reading.
func (s *Switchable) LastReadPos() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReadPos
}

// CapacityWaiter is implemented by backends whose writable capacity can
// be waited on, letting a blocked writer wake as soon as space frees
// instead of polling on a fixed interval.
type CapacityWaiter interface {
	WaitForSpace(ctx context.Context) error
}

// WaitForSpace blocks until the current backend reports available
// capacity, or ctx ends. Backends that never bound capacity (and so
// never cause a partial write) don't implement CapacityWaiter; for
// those this returns immediately.
func (s *Switchable) WaitForSpace(ctx context.Context) error {
	s.mu.RLock()
	curr := s.curr
	s.mu.RUnlock()
	if cw, ok := curr.(CapacityWaiter); ok {
		return cw.WaitForSpace(ctx)
	}
	return nil
}

// migrating reports whether a prev backend is currently present.
func (s *Switchable) migrating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prev != nil
}

// Close releases both backends.
func (s *Switchable) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prev != nil {
		_ = s.prev.Close()
	}
	return s.curr.Close()
}
