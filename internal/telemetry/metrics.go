// Package telemetry holds the portal's observability plumbing: the slog logger, the
// Prometheus metrics and the OpenTelemetry tracer provider.
//
// # Prometheus Metrics Endpoint
//
// Metrics register against the default registry and are served by the side-channel
// server that cmd/server starts on telemetry.metrics.prometheus_port (default 9090):
//
//	GET http://<host>:9090/metrics
//
// The endpoint is not part of the Gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (the route template, e.g. /api/v1/admin/users/:uid)
// so user IDs and key IDs never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Error rate (%):      sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Registration metrics. The outcome label is "success" or the name of the step that
// failed (create_identity, upload_avatar, update_identity, create_profile,
// increment_counter). Any non-success outcome after create_identity means partial state
// was left behind unless compensation is enabled.
//
// Example PromQL queries:
//   - Orphan-producing failures: sum(rate(registrations_total{outcome!~"success|create_identity"}[1h]))
var (
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Registration attempts that passed validation, by outcome.",
		},
		[]string{"outcome"},
	)

	RegistrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "registration_duration_seconds",
			Help:    "Time spent running the registration steps.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// LoginAttemptsTotal counts logins by result: success, invalid_credentials or banned.
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts, by result.",
	},
	[]string{"result"},
)

// API key metrics.
//
// GatewayRequestsTotal outcomes: allowed, missing_key, invalid_key, unusable_key,
// insufficient_scope, rate_limited.
var (
	APIKeysIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apikeys_issued_total",
			Help: "API keys issued, by scope.",
		},
		[]string{"scope"},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests to x-api-key routes, by route template and outcome.",
		},
		[]string{"path", "outcome"},
	)

	// APIKeyExpiryNotificationsSentTotal is incremented once per expiry warning email delivered.
	APIKeyExpiryNotificationsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apikey_expiry_notifications_sent_total",
			Help: "Total number of API key expiry warning emails successfully sent.",
		},
	)
)

// CounterStreamListeners is the number of open admin SSE streams of the user counter.
var CounterStreamListeners = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "user_counter_stream_listeners",
		Help: "Open realtime streams of the shared user counter.",
	},
)

// DBOpenConnections tracks open connections in the sql.DB pool, sampled by
// StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// ObserveRegistration records one registration attempt. failedStep is empty on success.
func ObserveRegistration(failedStep string, d time.Duration) {
	outcome := failedStep
	if outcome == "" {
		outcome = "success"
	}
	RegistrationsTotal.WithLabelValues(outcome).Inc()
	RegistrationDuration.Observe(d.Seconds())
}

// StartDBStatsCollector samples the pool every interval until ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable", "error", err)
					continue
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
