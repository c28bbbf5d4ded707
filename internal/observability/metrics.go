// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Replay metrics
	ReplaysTotal        *prometheus.CounterVec
	ReplayDuration      prometheus.Histogram
	CandlesConsumed     prometheus.Histogram
	InvariantViolations *prometheus.CounterVec
	FillDegradations    *prometheus.CounterVec

	// Catalog metrics
	CatalogLookups     *prometheus.CounterVec
	CatalogProductions *prometheus.CounterVec
	CatalogProduceTime *prometheus.HistogramVec

	// Study metrics
	StudyCells    *prometheus.CounterVec
	StudyDuration prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "signal_replay_lab"
	}

	return &Metrics{
		// Replay metrics
		ReplaysTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "runs_total",
			Help:      "Total number of replays by status",
		}, []string{"status"}),
		ReplayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "duration_seconds",
			Help:      "Wall time of a single replay",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		CandlesConsumed: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "candles_consumed",
			Help:      "Candles consumed per non-empty replay",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		InvariantViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "invariant_violations_total",
			Help:      "Invariant violations detected after replay, by rule",
		}, []string{"rule"}),
		FillDegradations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "fill_degradations_total",
			Help:      "Simulated failed or partial fills",
		}, []string{"outcome"}),

		// Catalog metrics
		CatalogLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "lookups_total",
			Help:      "Catalog lookups by artifact kind and result",
		}, []string{"kind", "result"}),
		CatalogProductions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "productions_total",
			Help:      "Underlying producer invocations by artifact kind and status",
		}, []string{"kind", "status"}),
		CatalogProduceTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "produce_duration_seconds",
			Help:      "Time spent producing an artifact",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		// Study metrics
		StudyCells: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "study",
			Name:      "cells_total",
			Help:      "Validation study cells by status",
		}, []string{"status"}),
		StudyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "study",
			Name:      "duration_seconds",
			Help:      "Wall time of a validation study",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordReplay records one replay outcome.
func RecordReplay(status string, seconds float64, candles int) {
	DefaultMetrics.ReplaysTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ReplayDuration.Observe(seconds)
	if candles > 0 {
		DefaultMetrics.CandlesConsumed.Observe(float64(candles))
	}
}

// RecordInvariantViolation increments the violation counter for rule.
func RecordInvariantViolation(rule string) {
	DefaultMetrics.InvariantViolations.WithLabelValues(rule).Inc()
}

// RecordFillDegradation records a failed or partial simulated fill.
func RecordFillDegradation(failed bool) {
	outcome := "partial"
	if failed {
		outcome = "failed"
	}
	DefaultMetrics.FillDegradations.WithLabelValues(outcome).Inc()
}

// RecordCatalogLookup records a catalog hit or miss.
func RecordCatalogLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CatalogLookups.WithLabelValues(kind, result).Inc()
}

// RecordCatalogProduction records an underlying producer call.
func RecordCatalogProduction(kind string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.CatalogProductions.WithLabelValues(kind, status).Inc()
	DefaultMetrics.CatalogProduceTime.WithLabelValues(kind).Observe(seconds)
}

// RecordStudyCell records a validation cell outcome.
func RecordStudyCell(status string) {
	DefaultMetrics.StudyCells.WithLabelValues(status).Inc()
}

// RecordStudy records a finished validation study.
func RecordStudy(seconds float64) {
	DefaultMetrics.StudyDuration.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
