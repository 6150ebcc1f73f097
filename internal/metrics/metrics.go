// Package metrics provides Prometheus metrics for the admin auth service.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "admin"
	subsystem = "auth"
)

// Version is reported by the info gauge.
var Version = "dev"

var (
	// Using atomic.Pointer for lock-free initialization checks on hot path metrics.
	requestsTotal        atomic.Pointer[prometheus.CounterVec]
	requestDuration      atomic.Pointer[prometheus.HistogramVec]
	tokenOperationsTotal atomic.Pointer[prometheus.CounterVec]
	loginAttemptsTotal   atomic.Pointer[prometheus.CounterVec]
	authFailuresTotal    atomic.Pointer[prometheus.CounterVec]
	tokensExpired        atomic.Pointer[prometheus.GaugeVec]
)

// Init initializes all Prometheus metrics and registers them with the provided registry.
// This should be called once at application startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the ops listener",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	tokenOperationsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "token_operations_total",
			Help:      "Token lifecycle operations by family, operation and outcome",
		},
		[]string{"family", "operation", "outcome"},
	)
	if err := reg.Register(tokenOperationsVec); err != nil {
		return fmt.Errorf("failed to register tokenOperationsTotal: %w", err)
	}

	loginAttemptsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "login_attempts_total",
			Help:      "Admin credential checks by outcome",
		},
		[]string{"outcome"},
	)
	if err := reg.Register(loginAttemptsVec); err != nil {
		return fmt.Errorf("failed to register loginAttemptsTotal: %w", err)
	}

	authFailuresVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_failures_total",
			Help:      "Total number of bearer token authentication failures",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresVec); err != nil {
		return fmt.Errorf("failed to register authFailuresTotal: %w", err)
	}

	tokensExpiredVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_expired",
			Help:      "Number of stored tokens past their expiry, per family",
		},
		[]string{"family"},
	)
	if err := reg.Register(tokensExpiredVec); err != nil {
		return fmt.Errorf("failed to register tokensExpired: %w", err)
	}

	// Info gauge: static metric with constant label values for build info
	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "info",
			Help:      "Service version and build information",
		},
		[]string{"version"},
	)
	if err := reg.Register(infoGaugeVec); err != nil {
		return fmt.Errorf("failed to register infoGauge: %w", err)
	}
	infoGaugeVec.WithLabelValues(Version).Set(1)

	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	tokenOperationsTotal.Store(tokenOperationsVec)
	loginAttemptsTotal.Store(loginAttemptsVec)
	authFailuresTotal.Store(authFailuresVec)
	tokensExpired.Store(tokensExpiredVec)

	return nil
}

// RecordRequest increments the requests counter for the given method, path, and status code.
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordTokenOperation counts a lifecycle operation. outcome is "success" or "error".
func RecordTokenOperation(family, operation, outcome string) {
	if counter := tokenOperationsTotal.Load(); counter != nil {
		counter.WithLabelValues(family, operation, outcome).Inc()
	}
}

// RecordLoginAttempt counts a credential check.
// Outcomes: "success", "invalid_credentials", "inactive".
func RecordLoginAttempt(outcome string) {
	if counter := loginAttemptsTotal.Load(); counter != nil {
		counter.WithLabelValues(outcome).Inc()
	}
}

// RecordAuthFailure increments the auth failures counter for the given reason.
// Common reasons: "missing_token", "invalid_token", "expired_token", "forbidden".
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// SetExpiredTokens sets the expired token gauge for family.
func SetExpiredTokens(family string, n int) {
	if gauge := tokensExpired.Load(); gauge != nil {
		gauge.WithLabelValues(family).Set(float64(n))
	}
}

// Handler returns an HTTP handler for Prometheus metrics in text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a metrics handler serving reg.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// GetMetricsText returns the Prometheus text-format output from a registry.
// This is useful for testing and debugging.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	HandlerFor(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}

	return string(body), nil
}
