// Package metrics registers the process's Prometheus collectors: HTTP
// request metrics for the document API, and advisor-cycle metrics for
// the index engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics, recorded by pkg/server's logging middleware.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idxadvisor_http_requests_total",
			Help: "Total HTTP requests served, by method, route, and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idxadvisor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Advisor metrics, recorded by pkg/engine and pkg/storesource.
var (
	QueriesObservedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idxadvisor_queries_observed_total",
			Help: "Total queries folded into a QueryProfile, by namespace.",
		},
		[]string{"namespace"},
	)

	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idxadvisor_sync_cycles_total",
			Help: "Total synchronization cycles run, by outcome.",
		},
		[]string{"outcome"},
	)

	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idxadvisor_sync_cycle_duration_seconds",
			Help:    "Duration of a full synchronization cycle.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
	)

	IndexesReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idxadvisor_indexes_reconciled_total",
			Help: "Total indexes created, dropped, kept, or failed during reconciliation.",
		},
		[]string{"namespace", "action"},
	)

	FieldsDemotedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idxadvisor_fields_demoted_total",
			Help: "Total fields force-demoted to hash mode after an index-too-large create failure.",
		},
		[]string{"namespace"},
	)

	RecommendedIndexesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "idxadvisor_recommended_indexes",
			Help: "Number of indexes currently recommended, by namespace.",
		},
		[]string{"namespace"},
	)
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
