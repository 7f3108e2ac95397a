// Package rangewatch implements a lag-tolerant broadcast of the current
// active write range, letting blocked readers wake as soon as a needed
// offset becomes available.
package rangewatch

import (
	"context"
	"sync"

	"rangestream/internal/rangeset"
)

// Watch publishes the most recently appended half-open range. Receivers
// obtained via Subscribe always see the latest published value; a
// receiver that falls behind simply re-reads the latest value on its
// next wait rather than erroring (lag is treated as "retry").
type Watch struct {
	mu     sync.Mutex
	latest rangeset.Range
	ch     chan struct{}
}

// New creates an empty Watch.
func New() *Watch {
	return &Watch{ch: make(chan struct{})}
}

// Publish records the newly active range and wakes all current waiters.
func (w *Watch) Publish(r rangeset.Range) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest = r
	close(w.ch)
	w.ch = make(chan struct{})
}

// Latest returns the most recently published range.
func (w *Watch) Latest() rangeset.Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// Receiver is an independent, clonable view onto a Watch.
type Receiver struct {
	w *Watch
}

// Subscribe returns a new Receiver. Subscribe before taking any action
// that might race a Publish, so no update is missed between checking
// state and waiting.
func (w *Watch) Subscribe() *Receiver {
	return &Receiver{w: w}
}

// BlockingWaitFor blocks until the latest published range's end exceeds
// neededPos, or ctx ends.
func (r *Receiver) BlockingWaitFor(ctx context.Context, neededPos uint64) error {
	return r.BlockingWaitForOrSignal(ctx, neededPos, nil)
}

// BlockingWaitForOrSignal is BlockingWaitFor, but also returns as soon as
// done closes. A writer that has permanently stopped publishing new
// ranges (the stream ended) never causes latest.End to grow again, so a
// caller that needs to notice that condition passes its own completion
// signal (e.g. size.Tracker.EOFSmallerThan) as done rather than blocking
// forever on range updates that will never come.
func (r *Receiver) BlockingWaitForOrSignal(ctx context.Context, neededPos uint64, done <-chan struct{}) error {
	for {
		r.w.mu.Lock()
		if r.w.latest.End > neededPos {
			r.w.mu.Unlock()
			return nil
		}
		ch := r.w.ch
		r.w.mu.Unlock()

		select {
		case <-ch:
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
