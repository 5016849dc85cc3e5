package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

// Metrics holds all Prometheus metrics for finhub
type Metrics struct {
	// Market data vendor metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Session and role metrics
	RoleLookups        *prometheus.CounterVec
	RoleLookupDuration *prometheus.HistogramVec
	SessionEvents      *prometheus.CounterVec
	GuardNavigations   *prometheus.CounterVec

	// Command execution metrics
	CommandExecutions *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhub_upstream_requests_total",
				Help: "Total number of market data vendor requests",
			},
			[]string{"vendor", "status"},
		),
		UpstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finhub_upstream_latency_seconds",
				Help:    "Market data vendor request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"vendor"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhub_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finhub_http_request_duration_seconds",
				Help:    "HTTP API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		RoleLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhub_role_lookups_total",
				Help: "Role lookups by outcome (found, default, error, stale)",
			},
			[]string{"result"},
		),
		RoleLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finhub_role_lookup_duration_seconds",
				Help:    "Role store lookup duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
			},
			[]string{"store"},
		),
		SessionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhub_session_events_total",
				Help: "Identity provider session events by kind",
			},
			[]string{"kind"},
		),
		GuardNavigations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhub_guard_navigations_total",
				Help: "Route guard redirects by rule and target view",
			},
			[]string{"rule", "target"},
		),

		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhub_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "success"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finhub_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),
	}
}

// ObserveUpstream records one vendor request.
func (m *Metrics) ObserveUpstream(vendor, status string, d time.Duration) {
	m.UpstreamRequests.WithLabelValues(vendor, status).Inc()
	m.UpstreamLatency.WithLabelValues(vendor).Observe(d.Seconds())
}

// ObserveRoleLookup records a role store lookup outcome.
func (m *Metrics) ObserveRoleLookup(store, result string, d time.Duration) {
	m.RoleLookups.WithLabelValues(result).Inc()
	m.RoleLookupDuration.WithLabelValues(store).Observe(d.Seconds())
}

// RecordError counts err by its structured code. Errors without a code are
// counted as "unknown".
func (m *Metrics) RecordError(err error) {
	if err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	if code == "" {
		code = "unknown"
	}
	m.Errors.WithLabelValues(code).Inc()
}
