// Package metrics holds the Prometheus collectors for the judge backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates all collectors. Registered once at startup via
// promauto; exposed on /metrics.
type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Judge dispatch
	DispatchTotal   *prometheus.CounterVec
	DispatchSeconds prometheus.Histogram

	// Autosave
	SavesTotal   prometheus.Counter
	FlushesTotal *prometheus.CounterVec
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oj_http_requests_total",
				Help: "HTTP requests processed, by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oj_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		DispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oj_judge_dispatch_total",
				Help: "Code executions dispatched to judge workers, by outcome",
			},
			[]string{"outcome"}, // ok, worker_error, no_server, fallback
		),
		DispatchSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oj_judge_dispatch_duration_seconds",
				Help:    "End-to-end judge dispatch latency including worker call",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		SavesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "oj_autosave_saves_total",
				Help: "Autosave buffer writes accepted",
			},
		),
		FlushesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oj_autosave_flushes_total",
				Help: "Autosave flushes driven by key expiry, by outcome",
			},
			[]string{"outcome"}, // ok, skipped, error
		),
	}
}
