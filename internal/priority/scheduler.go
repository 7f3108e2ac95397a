// Package priority implements the cross-stream bandwidth scheduler: a
// strict-priority cascade where the stream currently owning an active
// Reader is promoted above all others.
package priority

import (
	"sort"
	"sync"
)

// Scheduler allocates a shared bandwidth budget across streams in strict
// priority order, generalized from a within-file byte-offset priority
// gradient into a cross-stream cascade: all available bandwidth goes to
// the highest-priority stream that can use it, the remainder cascades to
// the next, and so on.
type Scheduler struct {
	mu         sync.Mutex
	priorities map[uint64]int32
	active     map[uint64]bool
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		priorities: make(map[uint64]int32),
		active:     make(map[uint64]bool),
	}
}

// SetPriority records stream id's configured signed priority.
func (s *Scheduler) SetPriority(id uint64, p int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priorities[id] = p
}

// Remove drops bookkeeping for a cancelled stream.
func (s *Scheduler) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.priorities, id)
	delete(s.active, id)
}

// Promote marks id as owning (or no longer owning) an active Reader.
// While active, id's effective priority is >= every other stream's,
// satisfying the active-reader-promotion invariant.
func (s *Scheduler) Promote(id uint64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.active[id] = true
	} else {
		delete(s.active, id)
	}
}

func (s *Scheduler) effectivePriorityLocked(id uint64) (int32, bool) {
	active := s.active[id]
	return s.priorities[id], active
}

// Allocate divides totalBPS across the streams named in demand (each
// value its maximum usable bandwidth; <= 0 means unbounded demand),
// in strict priority order. Active-reader streams sort above all
// inactive ones regardless of configured priority; ties break by
// configured priority, then by id for determinism.
func (s *Scheduler) Allocate(totalBPS int, demand map[uint64]int) map[uint64]int {
	s.mu.Lock()
	type entry struct {
		id       uint64
		priority int32
		active   bool
	}
	entries := make([]entry, 0, len(demand))
	for id := range demand {
		p, active := s.effectivePriorityLocked(id)
		entries = append(entries, entry{id: id, priority: p, active: active})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].active != entries[j].active {
			return entries[i].active
		}
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].id < entries[j].id
	})

	out := make(map[uint64]int, len(entries))
	remaining := totalBPS
	for _, e := range entries {
		if remaining <= 0 {
			out[e.id] = 0
			continue
		}
		d := demand[e.id]
		if d <= 0 || d > remaining {
			d = remaining
		}
		out[e.id] = d
		remaining -= d
	}
	return out
}
