// Package metrics provides Prometheus metrics for the collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all collector metrics.
	Namespace = "collector"
)

// Metrics holds all Prometheus metrics for the collection engine.
type Metrics struct {
	// Fetch metrics
	PagesFetched  *prometheus.CounterVec
	FetchRetries  *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	SessionResets *prometheus.CounterVec

	// Parse metrics
	ParseWarnings *prometheus.CounterVec
	ParseFailures *prometheus.CounterVec

	// Store metrics
	CasesUpserted *prometheus.CounterVec

	// Task metrics
	TasksStarted  *prometheus.CounterVec
	TasksFinished *prometheus.CounterVec
	TasksRunning  prometheus.Gauge
}

// New creates and registers all collector metrics.
// Pass nil to register on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.PagesFetched = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of result pages fetched",
		},
		[]string{"region"},
	)

	m.FetchRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetch_retries_total",
			Help:      "Total number of page fetch retries",
		},
		[]string{"region"},
	)

	m.FetchFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetch_failures_total",
			Help:      "Total number of page fetches that failed after retries",
		},
		[]string{"region"},
	)

	m.FetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of page fetches in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"region"},
	)

	m.SessionResets = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "session_resets_total",
			Help:      "Total number of sessions invalidated after expiry responses",
		},
		[]string{"region"},
	)

	m.ParseWarnings = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "parse_warnings_total",
			Help:      "Total number of result rows skipped while parsing",
		},
		[]string{"region"},
	)

	m.ParseFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "parse_failures_total",
			Help:      "Total number of pages whose shape could not be parsed",
		},
		[]string{"region"},
	)

	m.CasesUpserted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cases_upserted_total",
			Help:      "Total number of case records written, by outcome",
		},
		[]string{"region", "result"},
	)

	m.TasksStarted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_started_total",
			Help:      "Total number of collection tasks started",
		},
		[]string{"kind"},
	)

	m.TasksFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of collection tasks finished, by status",
		},
		[]string{"kind", "status"},
	)

	m.TasksRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tasks_running",
			Help:      "Number of collection tasks currently running",
		},
	)

	return m
}
