// Package rangeset implements a set of non-overlapping half-open byte
// intervals, sorted by start offset.
package rangeset

import "sort"

// Range is a half-open byte interval [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether pos falls inside the range.
func (r Range) Contains(pos uint64) bool {
	return pos >= r.Start && pos < r.End
}

// touchesOrOverlaps reports whether r and o share at least one byte, or touch
// (End == Start), in which case they are mergeable.
func (r Range) touchesOrOverlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Set is a sorted, non-overlapping collection of ranges. The zero value
// is an empty set.
type Set struct {
	ranges []Range
}

// Ranges returns a copy of the underlying sorted ranges.
func (s Set) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Add merges r into the set, coalescing with any touching or overlapping
// ranges.
func (s *Set) Add(r Range) {
	if r.End <= r.Start {
		return
	}
	merged := []Range{r}
	kept := s.ranges[:0:0]
	for _, existing := range s.ranges {
		if existing.touchesOrOverlaps(merged[0]) {
			if existing.Start < merged[0].Start {
				merged[0].Start = existing.Start
			}
			if existing.End > merged[0].End {
				merged[0].End = existing.End
			}
		} else {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, merged[0])
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	s.ranges = kept
}

// Contains reports whether pos is covered by some range in the set.
func (s *Set) Contains(pos uint64) bool {
	_, ok := s.Covering(pos)
	return ok
}

// Covering returns the range covering pos, if any.
func (s *Set) Covering(pos uint64) (Range, bool) {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End > pos })
	if i < len(s.ranges) && s.ranges[i].Start <= pos {
		return s.ranges[i], true
	}
	return Range{}, false
}

// GaplessFromTill reports whether [pos, end) is entirely covered by a
// single contiguous run of ranges in the set (no gap between pos and end).
func (s *Set) GaplessFromTill(pos, end uint64) bool {
	if end <= pos {
		return true
	}
	cur := pos
	for _, r := range s.ranges {
		if r.Start > cur {
			break
		}
		if r.End > cur {
			cur = r.End
		}
		if cur >= end {
			return true
		}
	}
	return false
}

// Clear empties the set.
func (s *Set) Clear() {
	s.ranges = nil
}

// Reset replaces the set contents with a single range.
func (s *Set) Reset(r Range) {
	s.ranges = nil
	if r.End > r.Start {
		s.ranges = []Range{r}
	}
}

// Last returns the highest-offset range in the set, if any.
func (s Set) Last() (Range, bool) {
	if len(s.ranges) == 0 {
		return Range{}, false
	}
	return s.ranges[len(s.ranges)-1], true
}

// Intersect returns the portion of r covered by the set, as a slice of
// sub-ranges (possibly empty, possibly several if r spans multiple
// disjoint covered regions).
func (s *Set) Intersect(r Range) []Range {
	var out []Range
	for _, existing := range s.ranges {
		start := existing.Start
		if start < r.Start {
			start = r.Start
		}
		end := existing.End
		if end > r.End {
			end = r.End
		}
		if end > start {
			out = append(out, Range{Start: start, End: end})
		}
	}
	return out
}
