package store

import (
	"sort"
	"sync"

	"rangestream/internal/rangeset"
)

type segment struct {
	start uint64
	data  []byte
}

func (s segment) end() uint64 { return s.start + uint64(len(s.data)) }

// UnlimitedMem is an unbounded, segmented byte store. Writes extend the
// segment ending at pos, or open a new segment inserted in start order;
// reads locate the covering segment by scanning the (typically short)
// segment list.
type UnlimitedMem struct {
	mu       sync.Mutex
	segments []segment
	writePos uint64
	started  bool
}

// NewUnlimitedMem creates an empty segmented store.
func NewUnlimitedMem() *UnlimitedMem {
	return &UnlimitedMem{}
}

func (u *UnlimitedMem) WriteAt(buf []byte, pos uint64) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.started {
		u.writePos = pos
		u.started = true
	}
	if pos != u.writePos {
		return 0, ErrSeekInProgress
	}
	if len(buf) == 0 {
		return 0, nil
	}

	i := sort.Search(len(u.segments), func(i int) bool { return u.segments[i].start > pos })
	if i > 0 && u.segments[i-1].end() == pos {
		u.segments[i-1].data = append(u.segments[i-1].data, buf...)
	} else {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		u.segments = append(u.segments, segment{})
		copy(u.segments[i+1:], u.segments[i:])
		u.segments[i] = segment{start: pos, data: cp}
	}
	u.writePos += uint64(len(buf))
	return len(buf), nil
}

func (u *UnlimitedMem) find(pos uint64) (segment, bool) {
	for _, seg := range u.segments {
		if seg.start <= pos && pos < seg.end() {
			return seg, true
		}
	}
	return segment{}, false
}

func (u *UnlimitedMem) ReadAt(buf []byte, pos uint64) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	seg, ok := u.find(pos)
	if !ok {
		return 0
	}
	off := int(pos - seg.start)
	n := copy(buf, seg.data[off:])
	return n
}

func (u *UnlimitedMem) Ranges() rangeset.Set {
	u.mu.Lock()
	defer u.mu.Unlock()
	var s rangeset.Set
	for _, seg := range u.segments {
		s.Add(rangeset.Range{Start: seg.start, End: seg.end()})
	}
	return s
}

func (u *UnlimitedMem) GaplessFromTill(pos, end uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if end <= pos {
		return true
	}
	cur := pos
	for _, seg := range u.segments {
		if seg.start > cur {
			break
		}
		if seg.end() > cur {
			cur = seg.end()
		}
		if cur >= end {
			return true
		}
	}
	return false
}

func (u *UnlimitedMem) WriterJump(to uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.writePos = to
	u.started = true
}

func (u *UnlimitedMem) NSupportedRanges() int { return MaxSupportedRanges }

func (u *UnlimitedMem) Close() error { return nil }
