// Package metrics exposes Prometheus metrics for the check-in engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the guestlist engine.
type Metrics struct {
	Scans         *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Snapshots     prometheus.Counter
	OpenSessions  prometheus.Gauge
	ScanDuration  prometheus.Histogram
	EnrichBatches prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Scans: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatecheck_scans_total",
			Help: "Scan attempts by outcome (checked_in, walked_in, invited, rejected kinds)",
		}, []string{"outcome"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatecheck_transitions_total",
			Help: "Guest status transitions by action and outcome",
		}, []string{"action", "outcome"}),
		Snapshots: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatecheck_snapshots_total",
			Help: "Guestlist snapshots fanned out to session viewers",
		}),
		OpenSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gatecheck_open_sessions",
			Help: "Currently open event check-in sessions",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatecheck_scan_duration_ms",
			Help:    "Latency of scan resolution and transition in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
		EnrichBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatecheck_enrichment_batches_total",
			Help: "University enrichment batch lookups against the directory",
		}),
	}
}

// IncScan records a scan attempt outcome.
func (m *Metrics) IncScan(outcome string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(outcome).Inc()
}

// IncTransition records a state-machine action outcome.
func (m *Metrics) IncTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

// ObserveScanDuration records scan latency.
func (m *Metrics) ObserveScanDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(float64(d.Microseconds()) / 1000.0)
}

// IncSnapshot records one fanned-out snapshot.
func (m *Metrics) IncSnapshot() {
	if m == nil {
		return
	}
	m.Snapshots.Inc()
}

// SessionOpened and SessionClosed track the open-session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.OpenSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.OpenSessions.Dec()
}

// IncEnrichBatch records one directory batch lookup.
func (m *Metrics) IncEnrichBatch() {
	if m == nil {
		return
	}
	m.EnrichBatches.Inc()
}
