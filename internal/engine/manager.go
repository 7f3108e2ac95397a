// Package engine owns the set of concurrent streams: it assigns ids,
// routes task errors to the caller, forwards global bandwidth changes,
// and constructs the storage backend each new stream writes into.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"rangestream/internal/httpclient"
	"rangestream/internal/metrics"
	"rangestream/internal/notify"
	"rangestream/internal/priority"
	"rangestream/internal/stream"
	"rangestream/internal/store"
	"rangestream/internal/throttle"
)

// streamIDLabel renders a StreamId as the decimal label value used by
// per-stream gauges.
func streamIDLabel(id StreamId) string {
	return strconv.FormatUint(uint64(id), 10)
}

// StreamId is an opaque, monotonically increasing stream identifier.
type StreamId uint64

var idCounter atomic.Uint64

func nextID() StreamId {
	return StreamId(idCounter.Add(1))
}

// StreamError pairs a stream's id with a terminal error surfaced by its
// task.
type StreamError struct {
	ID  StreamId
	Err error
}

// ManagerOptions configures a Manager, following the plain-struct,
// explicitly-defaulted config shape used throughout this codebase rather
// than an options-pattern with hidden globals.
type ManagerOptions struct {
	InitialPrefetch int
	BandwidthBPS    int
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Notify          *notify.Hub
}

// defaultOptions fills in zero-valued fields, mirroring the
// LoadConfig-with-fallback-defaults convention used for process config.
// An InitialPrefetch of 0 selects the 10 000-byte default; only a
// negative value turns prefetch off.
func defaultOptions(o ManagerOptions) ManagerOptions {
	if o.InitialPrefetch == 0 {
		o.InitialPrefetch = 10_000
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type entry struct {
	id     StreamId
	cancel context.CancelFunc
	task   *stream.Task
	st     *store.Switchable
}

// Manager owns every stream task spawned via AddStreamToMem/ToDisk and
// forwards their terminal errors and global bandwidth changes.
type Manager struct {
	opts      ManagerOptions
	scheduler *priority.Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	errCh     chan StreamError

	localAddr net.Addr

	mu      sync.Mutex
	streams map[StreamId]*entry
}

// NewManager constructs a Manager and returns it alongside the channel
// on which streams' terminal errors are delivered. The channel buffers 64
// errors; an error that arrives while the buffer is full is logged and
// dropped.
func NewManager(opts ManagerOptions) (*Manager, <-chan StreamError) {
	opts = defaultOptions(opts)
	errCh := make(chan StreamError, 64)
	m := &Manager{
		opts:      opts,
		scheduler: priority.New(),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		errCh:     errCh,
		streams:   make(map[StreamId]*entry),
	}
	return m, errCh
}

// managerNotifier adapts a Manager's optional notify.Hub to the
// stream.Notifier interface, so task lifecycle events reach WebSocket
// clients without the stream package depending on the transport.
type managerNotifier struct {
	hub *notify.Hub
}

func (n managerNotifier) NotifyStateChanged(streamID uint64, state stream.State) {
	n.hub.Publish(notify.Event{
		Type:     notify.EventStateChanged,
		StreamID: streamID,
		Data:     notify.StateChangedData{State: state.String()},
	})
}

func (n managerNotifier) NotifySizeKnown(streamID uint64, size uint64) {
	n.hub.Publish(notify.Event{
		Type:     notify.EventSizeKnown,
		StreamID: streamID,
		Data:     notify.SizeKnownData{Size: size},
	})
}

// backendKind selects which storage backend a new stream is given.
type backendKind int

const (
	backendUnlimitedMem backendKind = iota
	backendLimitedMem
	backendDisk
)

func (m *Manager) newBackend(kind backendKind, limitedBytes int, diskPath string) (store.Backend, error) {
	switch kind {
	case backendLimitedMem:
		return store.NewLimitedMem(limitedBytes), nil
	case backendDisk:
		return store.OpenDisk(diskPath, false)
	default:
		return store.NewUnlimitedMem(), nil
	}
}

func (m *Manager) addStream(ctx context.Context, url string, kind backendKind, limitedBytes int, diskPath string, localAddrOverride net.Addr) (*Handle, error) {
	backend, err := m.newBackend(kind, limitedBytes, diskPath)
	if err != nil {
		return nil, err
	}
	id := nextID()
	st := store.NewSwitchable(backend)

	taskCtx, cancel := context.WithCancel(ctx)
	opts := stream.Options{
		BandwidthBPS: m.opts.BandwidthBPS,
		Logger:       m.logger,
		Metrics:      m.metrics,
	}
	if m.opts.Notify != nil {
		opts.Notifier = managerNotifier{hub: m.opts.Notify}
	}
	localAddr := localAddrOverride
	if localAddr == nil {
		m.mu.Lock()
		localAddr = m.localAddr
		m.mu.Unlock()
	}
	if localAddr != nil {
		opts.ClientOptions = append(opts.ClientOptions, httpclient.WithLocalAddr(localAddr))
	}
	task := stream.New(uint64(id), url, st, opts)
	m.scheduler.SetPriority(uint64(id), 0)
	if m.metrics != nil {
		m.metrics.StreamPriority.WithLabelValues(streamIDLabel(id)).Set(0)
	}

	// A disk backend reopened against a path with durable progress
	// already resumes mid-file; everything else starts at zero. Run
	// blocks on this first seek before issuing any request.
	resumeFrom := uint64(0)
	if last, ok := st.Ranges().Last(); ok {
		resumeFrom = last.End
	}
	task.Seek(resumeFrom)

	m.mu.Lock()
	m.streams[id] = &entry{id: id, cancel: cancel, task: task, st: st}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.StreamsActive.Inc()
	}
	m.recomputeBandwidth()

	go func() {
		err := task.Run(taskCtx)
		if m.metrics != nil {
			m.metrics.StreamsActive.Dec()
			m.metrics.StreamPriority.DeleteLabelValues(streamIDLabel(id))
			if err != nil {
				m.metrics.ErrorsTotal.WithLabelValues(errorKind(err)).Inc()
			}
		}
		m.mu.Lock()
		delete(m.streams, id)
		m.mu.Unlock()
		m.scheduler.Remove(uint64(id))
		m.recomputeBandwidth()
		if err != nil {
			select {
			case m.errCh <- StreamError{ID: id, Err: err}:
			default:
				m.logger.Warn("engine: dropping stream error, no receiver", slog.Uint64("stream_id", uint64(id)), slog.Any("error", err))
			}
		}
	}()

	return &Handle{mgr: m, id: id, ctx: taskCtx, task: task, st: st}, nil
}

// errorKind classifies a terminal stream error into the label used by
// ErrorsTotal, matching the taxonomy in the stream and store packages.
func errorKind(err error) string {
	switch {
	case errors.Is(err, stream.ErrHTTP):
		return "http"
	case errors.Is(err, stream.ErrWriting):
		return "writing"
	case errors.Is(err, stream.ErrAllocation):
		return "allocation"
	case errors.Is(err, stream.ErrMigration), errors.Is(err, store.ErrMigration):
		return "migration"
	default:
		return "other"
	}
}

// AddStreamToMem creates a stream backed by an unbounded in-memory store.
func (m *Manager) AddStreamToMem(ctx context.Context, url string) (*Handle, error) {
	return m.addStream(ctx, url, backendUnlimitedMem, 0, "", nil)
}

// AddStreamToLimitedMem creates a stream backed by a fixed-size ring
// buffer of limitedBytes.
func (m *Manager) AddStreamToLimitedMem(ctx context.Context, url string, limitedBytes int) (*Handle, error) {
	return m.addStream(ctx, url, backendLimitedMem, limitedBytes, "", nil)
}

// AddStreamToDisk creates a stream backed by a file at path with a
// persistent progress sidecar.
func (m *Manager) AddStreamToDisk(ctx context.Context, url, path string) (*Handle, error) {
	return m.addStream(ctx, url, backendDisk, 0, path, nil)
}

// CancelStream cancels the stream's task; any bytes already durable
// remain so.
func (m *Manager) CancelStream(id StreamId) {
	m.mu.Lock()
	e, ok := m.streams[id]
	m.mu.Unlock()
	if ok {
		e.cancel()
	}
}

// LimitBandwidth sets the pool every live stream draws from; the actual
// per-stream share is then derived by recomputeBandwidth according to
// the priority scheduler's strict-priority cascade (§4.C11): the
// highest-priority stream with an active Reader gets first call on the
// pool, remaining capacity cascades to the next.
func (m *Manager) LimitBandwidth(bps int) {
	m.mu.Lock()
	m.opts.BandwidthBPS = bps
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.BandwidthLimit.Set(float64(bps))
	}
	m.recomputeBandwidth()
}

// recomputeBandwidth re-derives each live stream's allocated share of the
// configured global bandwidth pool via the priority scheduler and pushes
// the result to every task. A pool of <= 0 means unlimited: every stream
// is configured unthrottled rather than being starved by Allocate's
// remaining<=0 branch.
func (m *Manager) recomputeBandwidth() {
	m.mu.Lock()
	bps := m.opts.BandwidthBPS
	entries := make([]*entry, 0, len(m.streams))
	for _, e := range m.streams {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	if bps <= 0 {
		for _, e := range entries {
			e.task.Configure(throttle.Config{Kind: throttle.BandwidthLimitSet, BytesPerS: 0})
		}
		return
	}

	demand := make(map[uint64]int, len(entries))
	for _, e := range entries {
		demand[uint64(e.id)] = -1 // unbounded: will take as much of the pool as priority order allows
	}
	shares := m.scheduler.Allocate(bps, demand)
	for _, e := range entries {
		share := shares[uint64(e.id)]
		if share <= 0 {
			// A share of exactly 0 means "starved by the cascade", but
			// throttle.Config's BytesPerS <= 0 means "unlimited" — the
			// opposite. Floor at 1 B/s so a starved stream stays
			// throttled instead of inverting to unthrottled.
			share = 1
		}
		e.task.Configure(throttle.Config{Kind: throttle.BandwidthLimitSet, BytesPerS: share})
	}
}

// NewRestricted fixes the local bind address used by future streams.
func (m *Manager) NewRestricted(addr net.Addr) {
	m.mu.Lock()
	m.localAddr = addr
	m.mu.Unlock()
}
