// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run metrics
	RunsCompleted  *prometheus.CounterVec
	RunsFailed     *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	TradesRecorded *prometheus.CounterVec

	// Data metrics
	BarsLoaded    *prometheus.CounterVec
	BarsPersisted *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradesim_lab"
	}

	return &Metrics{
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_completed_total",
			Help:      "Total number of simulation runs completed",
		}, []string{"symbol"}),
		RunsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_failed_total",
			Help:      "Total number of simulation runs that returned an error",
		}, []string{"symbol"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of simulation runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"symbol"}),
		TradesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_recorded_total",
			Help:      "Total number of closed trades across runs",
		}, []string{"symbol"}),

		BarsLoaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "bars_loaded_total",
			Help:      "Total number of bars loaded by source",
		}, []string{"source"}),
		BarsPersisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "bars_persisted_total",
			Help:      "Total number of bars written to storage",
		}, []string{"backend"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Database query duration by backend and operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_errors_total",
			Help:      "Database query errors by backend and operation",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RunTimer starts timing a run; the returned function observes the elapsed
// duration.
func (m *Metrics) RunTimer(symbol string) func() {
	start := time.Now()
	return func() {
		m.RunDuration.WithLabelValues(symbol).Observe(time.Since(start).Seconds())
	}
}

// RunCompleted records a finished run and its trade count.
func (m *Metrics) RunCompleted(symbol string, trades int) {
	m.RunsCompleted.WithLabelValues(symbol).Inc()
	m.TradesRecorded.WithLabelValues(symbol).Add(float64(trades))
}

// RunFailed records an errored run.
func (m *Metrics) RunFailed(symbol string) {
	m.RunsFailed.WithLabelValues(symbol).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
