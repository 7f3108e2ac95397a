package engine

import (
	"context"
	"sync/atomic"
	"time"

	"rangestream/internal/notify"
	"rangestream/internal/reader"
	"rangestream/internal/store"
	"rangestream/internal/stream"
)

// Handle is the consumer-side ownership token for a stream: it
// exclusively owns the right to obtain a Reader and forwards priority
// and migration requests to the underlying task and store.
type Handle struct {
	mgr  *Manager
	id   StreamId
	ctx  context.Context
	task *stream.Task
	st   *store.Switchable

	// prefetch overrides the manager's InitialPrefetch for this stream
	// when set by StreamBuilder.WithPrefetch; zero means "use the
	// manager default".
	prefetch int

	readerInUse atomic.Bool
}

func (h *Handle) effectivePrefetch() int {
	if h.prefetch > 0 {
		return h.prefetch
	}
	return h.mgr.opts.InitialPrefetch
}

// ID returns the stream's identifier.
func (h *Handle) ID() StreamId { return h.id }

// handleReader wraps reader.Reader so Close also releases the handle's
// reader-in-use flag, enforcing at most one live Reader per stream.
type handleReader struct {
	*reader.Reader
	h *Handle
}

func (hr *handleReader) Close() error {
	err := hr.Reader.Close()
	hr.h.readerInUse.Store(false)
	return err
}

// TryGetReader returns a new Reader for this stream, or ErrHandleBusy if
// one is already live.
func (h *Handle) TryGetReader() (*handleReader, error) {
	if !h.readerInUse.CompareAndSwap(false, true) {
		return nil, ErrHandleBusy
	}
	promoter := &managerPromoter{mgr: h.mgr, id: uint64(h.id)}
	r := reader.New(h.st, h.task.Size(), h.task, promoter, h.effectivePrefetch())
	r.SetContext(h.ctx)
	return &handleReader{Reader: r, h: h}, nil
}

// SetPriority updates this stream's signed priority at the scheduler and
// immediately rebalances bandwidth allocation to reflect it.
func (h *Handle) SetPriority(p int32) {
	h.mgr.scheduler.SetPriority(uint64(h.id), p)
	if h.mgr.metrics != nil {
		h.mgr.metrics.StreamPriority.WithLabelValues(streamIDLabel(h.id)).Set(float64(p))
	}
	h.mgr.recomputeBandwidth()
}

// managerPromoter adapts priority.Scheduler.Promote to reader.Promoter,
// additionally triggering a bandwidth rebalance: the scheduler's
// active-reader promotion invariant only has an externally observable
// effect once the manager re-derives each stream's allocated share.
type managerPromoter struct {
	mgr *Manager
	id  uint64
}

func (p *managerPromoter) Promote(active bool) {
	p.mgr.scheduler.Promote(p.id, active)
	p.mgr.recomputeBandwidth()
}

// Cancel cancels this stream's task via the owning manager.
func (h *Handle) Cancel() {
	h.mgr.CancelStream(h.id)
}

// UseDiskBackendBlocking migrates this stream to a disk-backed store at
// path and returns a migration handle the caller can block on.
func (h *Handle) UseDiskBackendBlocking(path string) (*store.Migration, error) {
	target, err := store.OpenDisk(path, false)
	if err != nil {
		return nil, err
	}
	return h.startMigration("disk", target), nil
}

// UseUnlimitedMemBackendBlocking migrates this stream to an unbounded
// in-memory store and returns a migration handle the caller can block
// on.
func (h *Handle) UseUnlimitedMemBackendBlocking() *store.Migration {
	return h.startMigration("unlimited_mem", store.NewUnlimitedMem())
}

// UseLimitedMemBackendBlocking migrates this stream to a fixed-size
// ring-buffer store and returns a migration handle the caller can block
// on.
func (h *Handle) UseLimitedMemBackendBlocking(bytes int) *store.Migration {
	return h.startMigration("limited_mem", store.NewLimitedMem(bytes))
}

func (h *Handle) startMigration(backendName string, target store.Backend) *store.Migration {
	hub := h.mgr.opts.Notify
	if hub != nil {
		hub.Publish(notify.Event{
			Type:     notify.EventMigrationStarted,
			StreamID: uint64(h.id),
			Data:     notify.MigrationData{Backend: backendName},
		})
	}
	started := time.Now()
	mig := h.st.Migrate(context.Background(), target)
	if hub != nil || h.mgr.metrics != nil {
		go func() {
			errMsg := ""
			if err := mig.BlockTillDone(context.Background()); err != nil {
				errMsg = err.Error()
			}
			if h.mgr.metrics != nil {
				h.mgr.metrics.MigrationDuration.Observe(time.Since(started).Seconds())
			}
			if hub != nil {
				hub.Publish(notify.Event{
					Type:     notify.EventMigrationFinished,
					StreamID: uint64(h.id),
					Data:     notify.MigrationData{Backend: backendName, Err: errMsg},
				})
			}
		}()
	}
	return mig
}
