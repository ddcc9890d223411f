package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the module loader's Prometheus metrics
type Metrics struct {
	// Resolution metrics
	Rejections *prometheus.CounterVec

	// Load metrics
	Loads        *prometheus.CounterVec
	LoadDuration prometheus.Histogram
	CacheEvents  *prometheus.CounterVec

	// Runtime metrics
	RuntimesActive prometheus.Gauge
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram

	registry prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// gets a private registry, so several loaders in one process never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: gatherer,

		Rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_import_rejections_total",
				Help: "Import specifiers rejected before any file was read",
			},
			[]string{"kind"},
		),

		Loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_module_loads_total",
				Help: "Module records loaded, by outcome",
			},
			[]string{"outcome"},
		),
		LoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_module_load_duration_seconds",
				Help:    "Time to read, compile and evaluate a module including its static imports",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_module_cache_events_total",
				Help: "Module cache events (load, hit, coalesced, dropped)",
			},
			[]string{"event"},
		),

		RuntimesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_runtimes_active",
				Help: "Number of live sandbox runtimes",
			},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_runs_total",
				Help: "Entry module runs, by status",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_run_duration_seconds",
				Help:    "Entry module run duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
	}
}

// RecordRejection counts a specifier rejected by kind.
func (m *Metrics) RecordRejection(kind string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(kind).Inc()
}

// RecordLoad records one module load.
func (m *Metrics) RecordLoad(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(outcome).Inc()
	m.LoadDuration.Observe(duration.Seconds())
}

// CacheEvent counts a module cache event.
func (m *Metrics) CacheEvent(event string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(event).Inc()
}

// RecordRun records one entry module run.
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

// RuntimeOpened increments the live runtime gauge.
func (m *Metrics) RuntimeOpened() {
	if m != nil {
		m.RuntimesActive.Inc()
	}
}

// RuntimeClosed decrements the live runtime gauge.
func (m *Metrics) RuntimeClosed() {
	if m != nil {
		m.RuntimesActive.Dec()
	}
}

// Gatherer returns the registry the metrics were registered with, or nil when
// the registerer cannot gather.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
