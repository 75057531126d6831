// Package metrics provides Prometheus metrics for the arena daemon
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the arena and collection-start
// policy.
type Metrics struct {
	// Reservation and commit accounting.
	ChunksTotal              prometheus.Counter
	ArenaReservedBytes       prometheus.Counter
	ArenaCommittedBytes      prometheus.Gauge
	ArenaSpareCommittedBytes prometheus.Gauge

	// Hysteresis.
	PurgesTotal prometheus.Counter

	// Allocation.
	AllocationsTotal   *prometheus.CounterVec
	AllocationFailures *prometheus.CounterVec
	AllocDuration      prometheus.Histogram

	// Collection-start policy.
	TracesStartedTotal *prometheus.CounterVec

	// Server metrics.
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.ChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpsarena_chunks_total",
			Help: "Total number of chunks reserved over the arena's lifetime",
		},
	)

	m.ArenaReservedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpsarena_reserved_bytes_total",
			Help: "Total bytes reserved (mapped or not) across every chunk ever created",
		},
	)

	m.ArenaCommittedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpsarena_committed_bytes",
			Help: "Current OS-committed bytes across all chunks",
		},
	)

	m.ArenaSpareCommittedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpsarena_spare_committed_bytes",
			Help: "Current bytes held in the spare-commit hysteresis pool",
		},
	)

	m.PurgesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpsarena_purges_total",
			Help: "Total number of hysteresis purge operations that freed at least one page",
		},
	)

	m.AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpsarena_allocations_total",
			Help: "Total number of successful allocations, labeled by the plan that served them",
		},
		[]string{"plan"},
	)

	m.AllocationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpsarena_allocation_failures_total",
			Help: "Total number of failed allocation attempts, labeled by error class",
		},
		[]string{"reason"},
	)

	m.AllocDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mpsarena_alloc_duration_seconds",
			Help:    "Duration of Alloc calls in seconds",
			Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
		},
	)

	m.TracesStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpsarena_traces_started_total",
			Help: "Total number of traces started by the collection-start policy, labeled by reason",
		},
		[]string{"reason"},
	)

	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpsarena_server_uptime_seconds",
			Help: "Observability server uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordAllocFailure records a failed allocation attempt.
func (m *Metrics) RecordAllocFailure(reason string) {
	m.AllocationFailures.WithLabelValues(reason).Inc()
}
