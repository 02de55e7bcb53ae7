package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoapply"

// Application metrics
var (
	// ApplicationsTotal counts finished workflow runs by result status.
	ApplicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applications_total",
			Help:      "Application attempts by status (success/failed)",
		},
		[]string{"status"},
	)

	// ApplicationDuration tracks workflow wall time, pacing excluded.
	ApplicationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "application_duration_seconds",
			Help:      "Duration of a single application workflow",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
		},
	)

	// WorkflowStepFailures counts which step a failed run stopped at.
	WorkflowStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_step_failures_total",
			Help:      "Workflow failures by the step that failed",
		},
		[]string{"step"},
	)
)

// Session metrics
var (
	SessionsLaunched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_launched_total",
			Help:      "Browser sessions launched and logged in",
		},
	)

	// SessionTeardowns counts sessions closed, by reason (quota/expired/reset/one_shot/shutdown/login_failed).
	SessionTeardowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_teardowns_total",
			Help:      "Browser sessions torn down by reason",
		},
		[]string{"reason"},
	)

	SessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a logged-in browser session exists",
		},
	)

	LoginFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failures_total",
			Help:      "Failed login attempts",
		},
	)
)

// Pacing metrics
var (
	PacingWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pacing_wait_seconds",
			Help:      "Time spent waiting between applications",
			Buckets:   []float64{0, 1, 10, 30, 60, 90, 120, 150, 180},
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   []float64{.005, .05, .5, 5, 30, 60, 120, 300, 600},
		},
		[]string{"route"},
	)

	// ApplyRejected counts apply requests turned away before running (busy/rate_limited).
	ApplyRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_rejected_total",
			Help:      "Apply requests rejected before running, by reason",
		},
		[]string{"reason"},
	)
)

// Handler serves the default registry, which promauto registers into.
func Handler() http.Handler {
	return promhttp.Handler()
}
