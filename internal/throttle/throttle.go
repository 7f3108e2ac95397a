// Package throttle wraps an io.Reader with a token-bucket rate limiter
// and a pause gate, both driven by an asynchronous configuration channel
// so that reads suspend without busy-looping.
package throttle

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

// ConfigKind enumerates the throttle configuration messages a stream
// task may send while a fetch is in progress.
type ConfigKind int

const (
	// Paused suspends reads until Resumed arrives.
	Paused ConfigKind = iota
	// Resumed lifts a pause.
	Resumed
	// BandwidthLimitSet installs a new token-bucket rate in bytes/sec.
	BandwidthLimitSet
	// BandwidthLimitUpdated changes the rate of an already-installed limiter.
	BandwidthLimitUpdated
	// BandwidthLimitRemoved removes throttling entirely.
	BandwidthLimitRemoved
)

// Config is one configuration message delivered on a Reader's Configure
// channel.
type Config struct {
	Kind      ConfigKind
	BytesPerS int
}

// Reader wraps src, applying a rate limiter and pause gate to every Read.
type Reader struct {
	src  io.Reader
	ctx  context.Context
	cfgs chan Config

	mu      sync.Mutex
	paused  bool
	limiter *rate.Limiter
	resume  chan struct{}
}

// defaultBurst is the token bucket burst size, matching the epsilon
// tolerated by the bandwidth-cap timing check.
const defaultBurst = 4096

// New wraps src with a throttled Reader bound to ctx. bytesPerSec <= 0
// means unthrottled until a BandwidthLimitSet config arrives.
func New(ctx context.Context, src io.Reader, bytesPerSec int) *Reader {
	r := &Reader{
		src:    src,
		ctx:    ctx,
		cfgs:   make(chan Config, 8),
		resume: make(chan struct{}),
	}
	if bytesPerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), defaultBurst)
	}
	return r
}

// Configure delivers a configuration message. It never blocks the caller
// longer than the channel buffer allows; callers should treat it as
// fire-and-forget.
func (r *Reader) Configure(c Config) {
	select {
	case r.cfgs <- c:
	case <-r.ctx.Done():
	}
}

func (r *Reader) applyPending() {
	for {
		select {
		case c := <-r.cfgs:
			r.apply(c)
		default:
			return
		}
	}
}

func (r *Reader) apply(c Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch c.Kind {
	case Paused:
		r.paused = true
		r.resume = make(chan struct{})
	case Resumed:
		if r.paused {
			r.paused = false
			close(r.resume)
		}
	case BandwidthLimitSet, BandwidthLimitUpdated:
		// <= 0 means unlimited, consistent with the convention used
		// throughout this codebase (ManagerOptions.BandwidthBPS,
		// metrics.BandwidthLimit); a zero-rate limiter would instead
		// stall every read after the initial burst.
		if c.BytesPerS <= 0 {
			r.limiter = nil
		} else {
			r.limiter = rate.NewLimiter(rate.Limit(c.BytesPerS), defaultBurst)
		}
	case BandwidthLimitRemoved:
		r.limiter = nil
	}
}

// Read applies the pause gate and rate limiter, then delegates to the
// wrapped reader. It never busy-loops: pause waits on a channel close,
// and rate limiting waits on the limiter's reservation delay.
func (r *Reader) Read(p []byte) (int, error) {
	r.applyPending()

	for {
		r.mu.Lock()
		paused := r.paused
		resume := r.resume
		r.mu.Unlock()
		if !paused {
			break
		}
		select {
		case <-resume:
		case c := <-r.cfgs:
			r.apply(c)
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		}
	}

	r.mu.Lock()
	limiter := r.limiter
	r.mu.Unlock()
	if limiter != nil {
		n := len(p)
		if n > defaultBurst {
			n = defaultBurst
			p = p[:n]
		}
		if err := limiter.WaitN(r.ctx, n); err != nil {
			return 0, err
		}
	}

	return r.src.Read(p)
}
