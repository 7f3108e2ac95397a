package engine

import (
	"context"
	"net"

	"rangestream/internal/throttle"
)

// StreamBuilder accumulates stream options via method chaining before
// constructing the stream with Build. Unlike a typestate builder that
// encodes "backend selected" in the type system, Build enforces the
// same precondition at runtime with ErrNoBackendSelected: Go favors a
// plain struct plus an explicit check over a family of generic types
// for a single boolean invariant.
type StreamBuilder struct {
	mgr *Manager
	url string

	backendSet   bool
	kind         backendKind
	limitedBytes int
	diskPath     string

	prefetch int

	bandwidthSet bool
	bandwidthBPS int

	localAddr net.Addr
}

// NewStream starts building a stream against url. Call one of
// ToLimitedMem/ToUnlimitedMem/ToDisk before Build.
func (m *Manager) NewStream(url string) *StreamBuilder {
	return &StreamBuilder{mgr: m, url: url}
}

// WithPrefetch overrides the manager's default initial prefetch target
// for this stream. A value of 0 or less leaves the manager's value in
// place.
func (b *StreamBuilder) WithPrefetch(n int) *StreamBuilder {
	b.prefetch = n
	return b
}

// ToLimitedMem selects a fixed-size ring-buffer backend.
func (b *StreamBuilder) ToLimitedMem(bytes int) *StreamBuilder {
	b.backendSet = true
	b.kind = backendLimitedMem
	b.limitedBytes = bytes
	return b
}

// ToUnlimitedMem selects an unbounded in-memory backend.
func (b *StreamBuilder) ToUnlimitedMem() *StreamBuilder {
	b.backendSet = true
	b.kind = backendUnlimitedMem
	return b
}

// ToDisk selects a durable disk-backed store at path.
func (b *StreamBuilder) ToDisk(path string) *StreamBuilder {
	b.backendSet = true
	b.kind = backendDisk
	b.diskPath = path
	return b
}

// WithBandwidthLimit caps this stream's throughput in bytes/sec,
// independent of the manager-wide limit set by LimitBandwidth.
func (b *StreamBuilder) WithBandwidthLimit(bps int) *StreamBuilder {
	b.bandwidthSet = true
	b.bandwidthBPS = bps
	return b
}

// WithNetworkRestriction binds this stream's outgoing connections to
// addr, overriding the manager-wide restriction set by NewRestricted.
func (b *StreamBuilder) WithNetworkRestriction(addr net.Addr) *StreamBuilder {
	b.localAddr = addr
	return b
}

// Build constructs the stream per the accumulated options and returns
// its handle. It returns ErrNoBackendSelected if no ToXxx method was
// called first.
func (b *StreamBuilder) Build(ctx context.Context) (*Handle, error) {
	if !b.backendSet {
		return nil, ErrNoBackendSelected
	}
	h, err := b.mgr.addStream(ctx, b.url, b.kind, b.limitedBytes, b.diskPath, b.localAddr)
	if err != nil {
		return nil, err
	}
	if b.prefetch > 0 {
		h.prefetch = b.prefetch
	}
	if b.bandwidthSet {
		h.task.Configure(throttle.Config{Kind: throttle.BandwidthLimitSet, BytesPerS: b.bandwidthBPS})
	}
	return h, nil
}
