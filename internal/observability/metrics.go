// Package observability provides the Prometheus metrics shared by the
// pipeline binaries.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "raster_pipeline"

// Metrics holds the Prometheus counters, histograms, and gauges for pipeline runs.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	UnitsProcessed *prometheus.CounterVec   // labels: product
	UnitsSkipped   *prometheus.CounterVec   // labels: product, stage={fetch,transform}
	UnitDuration   *prometheus.HistogramVec // labels: product
	RawCache       *prometheus.CounterVec   // labels: product, result={hit,miss}

	ValidationFailures *prometheus.CounterVec // labels: product, rule
	CoveragePercent    *prometheus.GaugeVec   // labels: product

	// Fetch client metrics.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,error}
	FetchDuration prometheus.Histogram

	NotifyErrors prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		UnitsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_processed_total",
			Help:      "Units persisted as processed artifacts.",
		}, []string{"product"}),
		UnitsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_skipped_total",
			Help:      "Units skipped after a fetch or transform failure.",
		}, []string{"product", "stage"}),
		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Duration of a complete fetch-transform-validate-write cycle for one unit.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"product"}),
		RawCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_cache_total",
			Help:      "Raw data cache lookups by result.",
		}, []string{"product", "result"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Artifacts rejected by the metadata validator.",
		}, []string{"product", "rule"}),
		CoveragePercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_percent",
			Help:      "Share of expected dates present at the last coverage check.",
		}, []string{"product"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream data requests by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream data request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_errors_total",
			Help:      "Artifact notifications that could not be published.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.UnitsProcessed,
		m.UnitsSkipped,
		m.UnitDuration,
		m.RawCache,
		m.ValidationFailures,
		m.CoveragePercent,
		m.FetchRequests,
		m.FetchDuration,
		m.NotifyErrors,
	}
}
