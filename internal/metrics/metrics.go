// Package metrics declares the prometheus collectors this engine
// exposes under a single namespace, registered via one Register(reg)
// entrypoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the engine updates. A nil *Metrics is
// never passed to constructors that need it; callers that don't want
// metrics simply omit it from ManagerOptions.
type Metrics struct {
	StreamsActive prometheus.Gauge

	BytesFetchedTotal prometheus.Counter
	RedirectsTotal    prometheus.Counter
	ReconnectsTotal   prometheus.Counter

	ErrorsTotal *prometheus.CounterVec

	MigrationDuration prometheus.Histogram

	BandwidthLimit   prometheus.Gauge
	StreamPriority   *prometheus.GaugeVec
}

// New constructs a Metrics bundle with the "engine" namespace.
func New() *Metrics {
	return &Metrics{
		StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "streams_active",
			Help:      "Number of currently active streams.",
		}),
		BytesFetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "bytes_fetched_total",
			Help:      "Total bytes fetched from origins across all streams.",
		}),
		RedirectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "redirects_total",
			Help:      "Total HTTP redirects followed.",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "reconnects_total",
			Help:      "Total stream task reconnects, across seeks and connection drops.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "errors_total",
			Help:      "Total stream errors by kind (http, writing, allocation, migration).",
		}, []string{"kind"}),
		MigrationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Name:      "migration_duration_seconds",
			Help:      "Duration of store backend migrations in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		BandwidthLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "bandwidth_limit_bytes_per_sec",
			Help:      "Currently configured global bandwidth limit in bytes per second (0 = unlimited).",
		}),
		StreamPriority: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "stream_priority",
			Help:      "Configured signed priority of each stream.",
		}, []string{"stream_id"}),
	}
}

// Register registers every collector in m with reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.StreamsActive,
		m.BytesFetchedTotal,
		m.RedirectsTotal,
		m.ReconnectsTotal,
		m.ErrorsTotal,
		m.MigrationDuration,
		m.BandwidthLimit,
		m.StreamPriority,
	)
}
