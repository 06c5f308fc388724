// Package metrics provides Prometheus metrics for the sketch service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "sketchy"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)
)

// Generation metrics
var (
	// GenerationsTotal counts generation attempts by outcome
	// (ok, empty_canvas, busy, timeout, transport, truncated, rejected, unknown, parse, persistence).
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "total",
			Help:      "Total generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Upstream generation latency in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 30, 45, 60},
		},
	)

	// ParseStageTotal counts which parser stage recovered the artifact.
	ParseStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "parse_stage_total",
			Help:      "Artifacts recovered per parser stage",
		},
		[]string{"stage"},
	)

	GenerationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "in_flight",
			Help:      "Generations currently waiting on the upstream model",
		},
	)
)

// Version store metrics
var (
	VersionsAppendedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "versions",
			Name:      "appended_total",
			Help:      "Total versions appended",
		},
	)

	VersionsRestoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "versions",
			Name:      "restored_total",
			Help:      "Total restores into live state",
		},
	)
)

// Auto-save metrics
var (
	// AutosaveTotal counts persist steps by result (written, skipped, failed).
	AutosaveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "total",
			Help:      "Auto-save persist steps by result",
		},
		[]string{"result"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Open editing sessions",
		},
	)
)

// Jobs metrics
var (
	PurgedProjectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "purged_projects_total",
			Help:      "Soft-deleted projects physically removed",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
