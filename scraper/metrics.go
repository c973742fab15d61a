package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the harvester.
type Metrics struct {
	Registry           *prometheus.Registry
	NavigationsTotal   *prometheus.CounterVec
	NavigationDuration *prometheus.HistogramVec
	RecordsTotal       prometheus.Counter
	RetriesTotal       prometheus.Counter
	SkippedTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	FrontierSize       prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	navigations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_navigations_total",
			Help: "Total page navigations by phase.",
		},
		[]string{"phase"},
	)
	navigationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_navigation_duration_seconds",
			Help:    "Time until a navigation reached its readiness condition.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_records_total",
			Help: "Total number of records appended to the result set.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_skipped_total",
			Help: "Total number of detail pages abandoned after their last attempt.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Total number of failed attempts by type.",
		},
		[]string{"error_type"},
	)
	frontier := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_frontier_size",
			Help: "Unique detail URLs discovered so far.",
		},
	)

	registry.MustRegister(navigations, navigationDuration, records, retries, skipped, errorsTotal, frontier)

	return &Metrics{
		Registry:           registry,
		NavigationsTotal:   navigations,
		NavigationDuration: navigationDuration,
		RecordsTotal:       records,
		RetriesTotal:       retries,
		SkippedTotal:       skipped,
		ErrorsTotal:        errorsTotal,
		FrontierSize:       frontier,
	}
}

// IncNavigation increments the navigations counter.
func (m *Metrics) IncNavigation(phase string) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a navigation duration.
func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.NavigationDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.SkippedTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) SetFrontierSize(n int) {
	if m == nil {
		return
	}
	m.FrontierSize.Set(float64(n))
}
