// Package reader implements the consumer-facing synchronous Read+Seek
// interface: a prefetch buffer, range-watch-driven blocking, and
// seek-driven re-ranging that decides whether the underlying task must
// reconnect.
package reader

import (
	"context"
	"io"
	"sync"
	"time"

	"rangestream/internal/rangewatch"
	"rangestream/internal/size"
	"rangestream/internal/store"
)

// Seeker is the subset of the stream task a Reader needs: the ability to
// request a new write position.
type Seeker interface {
	Seek(pos uint64)
}

// Promoter is notified when a Reader becomes, or stops being, the active
// reader of its stream, driving the priority scheduler's promotion
// invariant (the active reader's stream is promoted to the highest
// priority for the lifetime of the Reader).
type Promoter interface {
	Promote(active bool)
}

// endSizeWait bounds how long an end-relative seek waits for the size to
// become known before failing with ErrUnknownSize.
const endSizeWait = time.Second

// Reader is a blocking io.ReadSeekCloser over a stream's store.
type Reader struct {
	st       *store.Switchable
	sz       *size.Tracker
	task     Seeker
	promoter Promoter
	watch    *rangewatch.Receiver

	prefetchTarget int

	ctxMu sync.Mutex
	ctx   context.Context

	mu            sync.Mutex
	curr          uint64
	lastSeek      uint64
	closed        bool
	prefetchBuf   []byte
	prefetchStart uint64
	prefetching   bool
}

// New constructs a Reader over st/sz, able to redirect task via Seek.
// prefetchTarget is the byte count the reader tries to keep pre-buffered
// ahead of curr.
func New(st *store.Switchable, sz *size.Tracker, task Seeker, promoter Promoter, prefetchTarget int) *Reader {
	r := &Reader{
		st:             st,
		sz:             sz,
		task:           task,
		promoter:       promoter,
		watch:          st.Watch().Subscribe(),
		prefetchTarget: prefetchTarget,
		ctx:            context.Background(),
	}
	if promoter != nil {
		promoter.Promote(true)
	}
	return r
}

// SetContext installs the context used by blocking waits inside Read and
// Seek.
func (r *Reader) SetContext(ctx context.Context) {
	r.ctxMu.Lock()
	r.ctx = ctx
	r.ctxMu.Unlock()
}

func (r *Reader) context() context.Context {
	r.ctxMu.Lock()
	defer r.ctxMu.Unlock()
	return r.ctx
}

// SetReadahead adjusts the prefetch target at runtime.
func (r *Reader) SetReadahead(n int) {
	r.mu.Lock()
	r.prefetchTarget = n
	r.mu.Unlock()
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	if n := r.copyFromPrefetchLocked(p); n > 0 {
		r.curr += uint64(n)
		r.mu.Unlock()
		r.maybePrefetch()
		return n, nil
	}
	curr := r.curr
	r.mu.Unlock()

	for {
		n := r.st.ReadAt(p, curr)
		if n > 0 {
			r.mu.Lock()
			r.curr += uint64(n)
			r.mu.Unlock()
			r.st.SetLastReadPos(r.curr)
			r.maybePrefetch()
			return n, nil
		}

		if ended, ok := r.sz.Ended(); ok {
			if curr >= ended {
				return 0, io.EOF
			}
		}

		// A stream that ends exactly at curr publishes no further range
		// (range-watch alone would block forever), so race the range
		// wait against the size tracker settling below curr.
		ctx := r.context()
		if err := r.watch.BlockingWaitForOrSignal(ctx, curr, r.sz.EOFSmallerThan(curr+1)); err != nil {
			return 0, err
		}
	}
}

// copyFromPrefetchLocked serves p from the prefetch buffer if it covers
// r.curr. Caller must hold r.mu.
func (r *Reader) copyFromPrefetchLocked(p []byte) int {
	if len(r.prefetchBuf) == 0 || r.prefetchStart != r.curr {
		return 0
	}
	n := copy(p, r.prefetchBuf)
	r.prefetchBuf = r.prefetchBuf[n:]
	r.prefetchStart += uint64(n)
	return n
}

// maybePrefetch launches a single-shot background fill of the prefetch
// buffer when the reader is keeping up and the buffer has run low.
func (r *Reader) maybePrefetch() {
	r.mu.Lock()
	if r.prefetching || r.prefetchTarget <= 0 || len(r.prefetchBuf) >= r.prefetchTarget || r.closed {
		r.mu.Unlock()
		return
	}
	r.prefetching = true
	start := r.curr + uint64(len(r.prefetchBuf))
	want := r.prefetchTarget - len(r.prefetchBuf)
	r.mu.Unlock()

	go func() {
		buf := make([]byte, want)
		n := r.st.ReadAt(buf, start)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.prefetching = false
		if n <= 0 || r.closed {
			return
		}
		if len(r.prefetchBuf) == 0 {
			r.prefetchStart = start
		}
		r.prefetchBuf = append(r.prefetchBuf, buf[:n]...)
	}()
}

// Seek implements io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	curr := r.curr
	r.mu.Unlock()

	var abs uint64
	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return 0, io.ErrShortBuffer
		}
		abs = uint64(offset)
	case io.SeekCurrent:
		abs = uint64(int64(curr) + offset)
	case io.SeekEnd:
		ctx, cancel := context.WithTimeout(r.context(), endSizeWait)
		defer cancel()
		total, err := r.sz.WaitForKnown(ctx)
		if err != nil {
			return 0, ErrUnknownSize
		}
		abs = uint64(int64(total) + offset)
	default:
		return 0, io.ErrUnexpectedEOF
	}

	ranges := r.st.Ranges()
	covered := ranges.Contains(abs)
	gapFilled := ranges.GaplessFromTill(min64(abs, r.lastSeek), abs)
	if !covered || !gapFilled {
		r.task.Seek(abs)
	}

	r.mu.Lock()
	r.curr = abs
	r.lastSeek = abs
	r.prefetchBuf = nil
	r.prefetchStart = abs
	r.mu.Unlock()

	return int64(abs), nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Close releases the reader's hold on the stream, notifying the
// priority scheduler it is no longer the active reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	if r.promoter != nil {
		r.promoter.Promote(false)
	}
	return nil
}
