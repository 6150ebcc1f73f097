// Package admin serves the ops HTTP listener: health probes, metrics and a
// small token-authenticated API for runtime controls.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sipico/admin-auth/internal/auth"
	"github.com/sipico/admin-auth/internal/metrics"
)

// LogLevelAction is the permission a token needs to change the log level.
const LogLevelAction = "admin::ops.log-level"

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides the ops endpoints.
type Handler struct {
	store    Pinger
	tokens   auth.Authenticator
	metrics  http.Handler
	logger   *slog.Logger
	logLevel *slog.LevelVar
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuthenticator mounts the /api routes, authenticated by a.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(h *Handler) { h.tokens = a }
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates an ops handler. logLevel is the variable backing the
// process logger so /api/loglevel changes take effect immediately.
func NewHandler(store Pinger, logLevel *slog.LevelVar, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	h := &Handler{
		store:    store,
		metrics:  metrics.Handler(),
		logger:   logger,
		logLevel: logLevel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
