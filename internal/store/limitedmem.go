package store

import (
	"context"
	"sync"

	"rangestream/internal/capacity"
	"rangestream/internal/rangeset"
)

// LimitedMem is a fixed-capacity ring buffer backend. It tracks exactly
// one active range and evicts bytes the reader has already consumed to
// make room for new writes, anchored on lastReadPos. Ring mechanics are
// adapted from a dedicated prefetch ring buffer (mutex-guarded circular
// array, modular copy helpers) generalized here from a single-producer
// streaming cache into the full WriteAt/ReadAt backend contract.
type LimitedMem struct {
	mu sync.Mutex

	buf       []byte
	physStart int // physical index of the oldest resident byte
	count     int // resident byte count, always <= len(buf)

	bufStart    uint64 // absolute offset of the oldest resident byte
	writePos    uint64 // absolute offset of the next byte to write
	lastReadPos uint64 // absolute offset up to which the reader has consumed

	capTracker *capacity.Tracker
}

// NewLimitedMem creates a ring buffer of the given byte capacity.
func NewLimitedMem(size int) *LimitedMem {
	if size <= 0 {
		size = 1
	}
	return &LimitedMem{
		buf:        make([]byte, size),
		capTracker: capacity.New(capacity.Limited(uint64(size))),
	}
}

// WaitForSpace blocks until eviction has freed room for another write,
// or ctx ends. Implements store.CapacityWaiter.
func (m *LimitedMem) WaitForSpace(ctx context.Context) error {
	return m.capTracker.WaitForSpace(ctx)
}

// SetLastReadPos records how far the consumer has read and immediately
// evicts whatever that newly permits, so a WriteAt blocked in
// WaitForSpace wakes as soon as the reader makes progress rather than
// waiting for its own next write attempt to reclaim the space.
func (m *LimitedMem) SetLastReadPos(pos uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos > m.lastReadPos {
		m.lastReadPos = pos
	}
	m.evictLocked(m.count)
}

func (m *LimitedMem) evictLocked(need int) {
	evictable := int(m.lastReadPos - m.bufStart)
	if evictable < 0 {
		evictable = 0
	}
	if evictable > need {
		evictable = need
	}
	if evictable <= 0 {
		return
	}
	m.physStart = (m.physStart + evictable) % len(m.buf)
	m.count -= evictable
	m.bufStart += uint64(evictable)
	m.capTracker.Add(uint64(evictable))
}

func (m *LimitedMem) WriteAt(buf []byte, pos uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 && m.writePos == 0 && m.bufStart == 0 && pos != 0 && m.capTracker.Available() == uint64(len(m.buf)) {
		// first write must start the active range at pos
		m.bufStart, m.writePos, m.lastReadPos = pos, pos, pos
	}
	if pos != m.writePos {
		return 0, ErrSeekInProgress
	}

	want := len(buf)
	if want == 0 {
		return 0, nil
	}
	free := len(m.buf) - m.count
	if free < want {
		m.evictLocked(want - free)
		free = len(m.buf) - m.count
	}
	n := want
	if n > free {
		n = free
	}
	m.capTracker.Remove(uint64(n))

	writeIdx := (m.physStart + m.count) % len(m.buf)
	remaining := buf[:n]
	for len(remaining) > 0 {
		chunk := len(m.buf) - writeIdx
		if chunk > len(remaining) {
			chunk = len(remaining)
		}
		copy(m.buf[writeIdx:writeIdx+chunk], remaining[:chunk])
		writeIdx = (writeIdx + chunk) % len(m.buf)
		remaining = remaining[chunk:]
	}
	m.count += n
	m.writePos += uint64(n)
	return n, nil
}

func (m *LimitedMem) ReadAt(buf []byte, pos uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos < m.bufStart || pos >= m.writePos {
		return 0
	}
	offset := int(pos - m.bufStart)
	avail := m.count - offset
	n := len(buf)
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return 0
	}
	readIdx := (m.physStart + offset) % len(m.buf)
	out := buf[:n]
	for len(out) > 0 {
		chunk := len(m.buf) - readIdx
		if chunk > len(out) {
			chunk = len(out)
		}
		copy(out[:chunk], m.buf[readIdx:readIdx+chunk])
		readIdx = (readIdx + chunk) % len(m.buf)
		out = out[chunk:]
	}
	return n
}

func (m *LimitedMem) Ranges() rangeset.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s rangeset.Set
	if m.count > 0 {
		s.Add(rangeset.Range{Start: m.bufStart, End: m.writePos})
	}
	return s
}

func (m *LimitedMem) GaplessFromTill(pos, end uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if end <= pos {
		return true
	}
	return pos >= m.bufStart && end <= m.writePos
}

func (m *LimitedMem) WriterJump(to uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.physStart = 0
	m.count = 0
	m.bufStart = to
	m.writePos = to
	m.lastReadPos = to
	m.capTracker.Reset()
}

func (m *LimitedMem) NSupportedRanges() int { return 1 }

func (m *LimitedMem) Close() error { return nil }
