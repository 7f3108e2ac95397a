// Package stream implements the per-stream fetch task: a state machine
// that connects to an origin, drains a ranged HTTP body into a store
// through a throttled adapter, and reconnects after a seek outside the
// current range or a body that ends cleanly before the known size. A body
// read that fails mid-transfer (for example an abrupt connection close)
// is not retried: it ends the task with an ErrHTTP error.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rangestream/internal/httpclient"
	"rangestream/internal/metrics"
	"rangestream/internal/size"
	"rangestream/internal/store"
	"rangestream/internal/target"
	"rangestream/internal/telemetry"
	"rangestream/internal/throttle"
)

// readChunk is the size pulled from the throttled body per iteration.
const readChunk = 32 * 1024

// writeRetryInterval caps how long drainBody waits for a capacity-bounded
// backend to free space before retrying a partially accepted write.
const writeRetryInterval = 20 * time.Millisecond

// Notifier receives lifecycle notifications a Task emits as it runs. An
// embedding process can implement this to push events (e.g. over
// WebSocket) without the task depending on any particular transport.
type Notifier interface {
	NotifyStateChanged(streamID uint64, state State)
	NotifySizeKnown(streamID uint64, size uint64)
}

// Options configures a Task at construction.
type Options struct {
	ChunkSize     uint64
	BandwidthBPS  int
	Logger        *slog.Logger
	ClientOptions []httpclient.Option
	Notifier      Notifier
	Metrics       *metrics.Metrics
}

// Task drives one stream's connect/fetch/reconnect lifecycle.
type Task struct {
	id  uint64
	url string

	store  *store.Switchable
	target *target.Target
	size   *size.Tracker
	client *httpclient.Client

	seekCh chan uint64
	cfgCh  chan throttle.Config

	// bandwidthBPS is the last configured rate limit, applied to every
	// freshly created throttle.Reader on (re)connect so a limit set
	// before the first connect, or one that outlives a reconnect, still
	// takes effect.
	bandwidthBPS atomic.Int64

	state atomic.Int32

	logger   *slog.Logger
	notifier Notifier
	metrics  *metrics.Metrics

	mu          sync.Mutex
	currentFrom uint64
	currentTo   uint64
}

// New constructs a Task bound to st, url and a freshly created client.
func New(id uint64, url string, st *store.Switchable, opts Options) *Task {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientOpts := opts.ClientOptions
	if opts.Metrics != nil {
		m := opts.Metrics
		clientOpts = append(clientOpts, httpclient.WithOnRedirect(func() { m.RedirectsTotal.Inc() }))
	}
	t := &Task{
		id:       id,
		url:      url,
		store:    st,
		target:   target.New(opts.ChunkSize),
		size:     size.New(),
		client:   httpclient.New(url, clientOpts...),
		seekCh:   make(chan uint64, 4),
		cfgCh:    make(chan throttle.Config, 8),
		logger:   logger.With(slog.Uint64("stream_id", id)),
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
	}
	t.bandwidthBPS.Store(int64(opts.BandwidthBPS))
	return t
}

// Size exposes the stream's size tracker for readers.
func (t *Task) Size() *size.Tracker { return t.size }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) setState(s State) {
	t.state.Store(int32(s))
	t.logger.Debug("stream: state transition", slog.String("state", s.String()))
	if t.notifier != nil {
		t.notifier.NotifyStateChanged(t.id, s)
	}
}

func (t *Task) notifySizeKnown(total uint64) {
	if t.notifier != nil {
		t.notifier.NotifySizeKnown(t.id, total)
	}
}

// Seek delivers a new desired write position, e.g. from a consumer-side
// seek. Two seeks arriving before the task acts may coalesce; only the
// most recent is needed before reconnecting.
func (t *Task) Seek(pos uint64) {
	select {
	case t.seekCh <- pos:
	default:
		// drain stale value and install the latest
		select {
		case <-t.seekCh:
		default:
		}
		t.seekCh <- pos
	}
}

// Configure forwards a pause/resume/bandwidth message to the active
// fetch's throttled reader, and records bandwidth changes so a
// subsequent reconnect's fresh throttle.Reader starts with the
// last-configured rate instead of reverting to unthrottled.
func (t *Task) Configure(c throttle.Config) {
	switch c.Kind {
	case throttle.BandwidthLimitSet, throttle.BandwidthLimitUpdated:
		t.bandwidthBPS.Store(int64(c.BytesPerS))
	case throttle.BandwidthLimitRemoved:
		t.bandwidthBPS.Store(0)
	}
	select {
	case t.cfgCh <- c:
	default:
	}
}

func (t *Task) inCurrentRange(pos uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pos >= t.currentFrom && pos < t.currentTo
}

func (t *Task) setCurrentRange(from, to uint64) {
	t.mu.Lock()
	t.currentFrom, t.currentTo = from, to
	t.mu.Unlock()
}

// Run executes the task's state machine until the stream completes,
// fails, or ctx is cancelled. A cancellation is treated as a graceful
// stop (nil error); any other terminal condition is wrapped per the
// error taxonomy in ErrHTTP/ErrWriting.
func (t *Task) Run(ctx context.Context) error {
	defer t.client.Close()
	defer t.setState(StateCancelled)

	t.setState(StateInitial)
	var pos uint64
	select {
	case pos = <-t.seekCh:
	case <-ctx.Done():
		return nil
	}
	t.target.Jump(pos)
	t.store.WriterJump(pos)

	forceNoRange := false
	firstConnect := true
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !firstConnect && t.metrics != nil {
			t.metrics.ReconnectsTotal.Inc()
		}
		firstConnect = false

		t.setState(StateConnecting)
		pos = t.target.Pos()

		spanCtx, span := telemetry.StartStreamSpan(ctx, t.id, "connect")
		var resp *httpclient.Response
		var err error
		if forceNoRange {
			resp, err = t.client.Connect(spanCtx, 0, 0)
		} else {
			resp, err = t.client.Connect(spanCtx, pos, 0)
		}
		span.End()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return wrapHTTP(err)
		}

		dropUntil := uint64(0)
		bodyStart := pos

		switch resp.Kind {
		case httpclient.RangeSupported:
			forceNoRange = false
			if resp.TotalKnown {
				t.size.Set(resp.Total)
				t.notifySizeKnown(resp.Total)
			}
			if resp.Start != pos {
				t.target.Jump(resp.Start)
				t.store.WriterJump(resp.Start)
				pos = resp.Start
			}
			bodyStart = pos
			t.setCurrentRange(resp.Start, resp.End)
			t.setState(StateStreamingSupported)

		case httpclient.RangeRefused:
			forceNoRange = true
			if resp.ContentLength >= 0 {
				t.size.Set(uint64(resp.ContentLength))
				t.notifySizeKnown(uint64(resp.ContentLength))
			}
			// Open question resolution: a 200 response to a non-zero
			// Range start is treated as a restart-from-zero,
			// non-seekable body; bytes before the requested start are
			// dropped rather than rewritten at the wrong offset.
			bodyStart = 0
			dropUntil = pos
			t.setCurrentRange(0, ^uint64(0))
			t.setState(StateStreamingRefused)

		case httpclient.RangeNotSatisfiable:
			if resp.TotalKnown {
				t.size.Set(resp.Total)
				t.notifySizeKnown(resp.Total)
			}
			forceNoRange = true
			continue
		}

		reconnectPos, done, err := t.drainBody(ctx, resp.Body, bodyStart, dropUntil)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if reconnectPos != nil {
			t.target.Jump(*reconnectPos)
			t.store.WriterJump(*reconnectPos)
			forceNoRange = false
		}
	}
}

// drainBody pulls bytes from body and appends them to the store,
// concurrently honoring seek and pause/bandwidth commands. It returns a
// non-nil reconnectPos when a seek outside the current range requires a
// fresh request, or done=true when the body has been fully consumed.
func (t *Task) drainBody(ctx context.Context, body io.ReadCloser, bodyStart, dropUntil uint64) (reconnectPos *uint64, done bool, err error) {
	defer body.Close()

	thr := throttle.New(ctx, body, int(t.bandwidthBPS.Load()))
	bodyCtx, cancelBody := context.WithCancel(ctx)
	defer cancelBody()

	type chunk struct {
		data []byte
		err  error
	}
	chunks := make(chan chunk)
	go func() {
		buf := make([]byte, readChunk)
		for {
			n, rerr := thr.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				select {
				case chunks <- chunk{data: cp}:
				case <-bodyCtx.Done():
					return
				}
			}
			if rerr != nil {
				select {
				case chunks <- chunk{err: rerr}:
				case <-bodyCtx.Done():
				}
				return
			}
		}
	}()

	bodyPos := bodyStart
	for {
		select {
		case <-ctx.Done():
			return nil, false, nil

		case newPos := <-t.seekCh:
			// coalesce any further pending seeks
			for drained := false; !drained; {
				select {
				case newPos = <-t.seekCh:
				default:
					drained = true
				}
			}
			if t.inCurrentRange(newPos) {
				continue
			}
			p := newPos
			return &p, false, nil

		case cfg := <-t.cfgCh:
			thr.Configure(cfg)

		case c := <-chunks:
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					if known, ok := t.size.Known(); ok {
						if t.target.Pos() >= known {
							// Symmetric to the unknown-size branch below:
							// pin the terminal state so a reader already
							// blocked on this offset (which range-watch
							// alone will never wake, since no further
							// range is published) gets unblocked too.
							t.size.MarkStreamEnd(known)
							return nil, true, nil
						}
						// server closed early; reconnect from current pos
						p := t.target.Pos()
						return &p, false, nil
					}
					t.size.MarkStreamEnd(t.target.Pos())
					return nil, true, nil
				}
				return nil, false, wrapHTTP(c.err)
			}

			data := c.data
			if bodyPos < dropUntil {
				skip := dropUntil - bodyPos
				if uint64(len(data)) <= skip {
					bodyPos += uint64(len(data))
					continue
				}
				data = data[skip:]
				bodyPos += skip
			}
			bodyPos += uint64(len(data))

			// A Limited capacity backend may accept fewer bytes than
			// offered when it is nearly full; retry the unwritten tail
			// until the reader frees space, rather than dropping it.
			seekedAway := false
			for len(data) > 0 {
				writePos := t.target.Pos()
				n, werr := t.store.WriteAt(data, writePos)
				if werr != nil {
					if errors.Is(werr, store.ErrSeekInProgress) {
						seekedAway = true
						break
					}
					return nil, false, wrapWriting(werr)
				}
				if n > 0 {
					t.target.Advance(uint64(n))
					data = data[n:]
					if t.metrics != nil {
						t.metrics.BytesFetchedTotal.Add(float64(n))
					}
				}
				if len(data) > 0 {
					// A capacity-bounded backend wakes this as soon as the
					// reader's progress frees space (store.CapacityWaiter),
					// and the interval below caps that wait; a backend
					// without CapacityWaiter returns at once and is retried
					// immediately.
					waitCtx, cancelWait := context.WithTimeout(ctx, writeRetryInterval)
					_ = t.store.WaitForSpace(waitCtx)
					cancelWait()
					if ctx.Err() != nil {
						return nil, false, nil
					}
				}
			}
			if seekedAway {
				continue
			}
		}
	}
}
