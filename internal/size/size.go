// Package size tracks the tri-state length of a remote resource: unknown
// until a response discloses it, known once disclosed, or pinned at a
// terminal value once the fetcher observes end-of-stream without ever
// having learned it from headers.
package size

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknown is returned by WaitForKnown when the size has not been
// disclosed by the origin before its context ends.
var ErrUnknown = errors.New("size: unknown")

type state int

const (
	stateUnknown state = iota
	stateKnown
	stateEnded
)

// maxValue reserves the top two bits of a uint64, mirroring the source
// repository's bit-packed representation without actually bit-packing:
// Go favors a tagged struct (state + value) over manual tag bits.
const maxValue = 1<<62 - 1

// Tracker is a concurrency-safe tri-state size: Unknown, Known(N), or
// StreamEnded(N). The zero value is Unknown.
type Tracker struct {
	mu       sync.Mutex
	state    state
	value    uint64
	waiters  []chan struct{}
	analyzed int
}

// New returns a Tracker starting in the Unknown state.
func New() *Tracker {
	return &Tracker{}
}

// Set records a disclosed total size, transitioning Unknown -> Known. A
// later call with a different value is a no-op once StreamEnded has been
// reached (StreamEnded is terminal).
func (t *Tracker) Set(n uint64) {
	if n > maxValue {
		n = maxValue
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateEnded {
		return
	}
	t.state = stateKnown
	t.value = n
	t.notifyLocked()
}

// MarkStreamEnd pins the terminal size at pos. Idempotent; once set,
// later calls are ignored (invariant 7: StreamEnded is monotone).
func (t *Tracker) MarkStreamEnd(pos uint64) {
	if pos > maxValue {
		pos = maxValue
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateEnded {
		return
	}
	t.state = stateEnded
	t.value = pos
	t.notifyLocked()
}

// Known returns the disclosed size and true if the state is Known or
// StreamEnded.
func (t *Tracker) Known() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateUnknown {
		return 0, false
	}
	return t.value, true
}

// Ended reports whether the size has reached the terminal StreamEnded
// state, and if so its value.
func (t *Tracker) Ended() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateEnded {
		return 0, false
	}
	return t.value, true
}

// Update records a disclosed size from an HTTP response: contentLength
// when the response is RangesRefused, or the parsed total from a
// Content-Range header when RangesSupported. A reported total of -1
// means "unknown" and is a no-op.
func (t *Tracker) Update(total int64) {
	t.mu.Lock()
	t.analyzed++
	t.mu.Unlock()
	if total < 0 {
		return
	}
	t.Set(uint64(total))
}

// RequestsAnalyzed returns the number of responses Update has processed.
func (t *Tracker) RequestsAnalyzed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyzed
}

// WaitForKnown blocks until the size becomes Known or StreamEnded, the
// context is cancelled, or ctx's deadline elapses. Returns ErrUnknown if
// ctx ends before a transition occurs.
func (t *Tracker) WaitForKnown(ctx context.Context) (uint64, error) {
	for {
		t.mu.Lock()
		if t.state != stateUnknown {
			v := t.value
			t.mu.Unlock()
			return v, nil
		}
		ch := make(chan struct{})
		t.waiters = append(t.waiters, ch)
		t.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return 0, ErrUnknown
		}
	}
}

// EOFSmallerThan returns a channel that closes once the size is known
// (Known or StreamEnded) with a value smaller than pos, or once the size
// reaches StreamEnded at any value (it can no longer change), i.e. once
// it is certain no more bytes will ever arrive at pos.
func (t *Tracker) EOFSmallerThan(pos uint64) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		for {
			t.mu.Lock()
			if t.state != stateUnknown && t.value < pos {
				t.mu.Unlock()
				return
			}
			if t.state == stateEnded {
				t.mu.Unlock()
				return
			}
			waiter := make(chan struct{})
			t.waiters = append(t.waiters, waiter)
			t.mu.Unlock()
			<-waiter
		}
	}()
	return ch
}

// notifyLocked wakes all current waiters. Caller must hold t.mu.
func (t *Tracker) notifyLocked() {
	for _, ch := range t.waiters {
		close(ch)
	}
	t.waiters = nil
}
