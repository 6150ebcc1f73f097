package admin

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sipico/admin-auth/internal/auth"
	"github.com/sipico/admin-auth/internal/metrics"
	"github.com/sipico/admin-auth/internal/middleware"
)

// NewRouter creates the ops router.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.HTTPLogging(h.logger))
	r.Use(metrics.Middleware)
	r.Use(chimw.Recoverer)

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Method("GET", "/metrics", h.metrics)

	if h.tokens != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodySize))
			r.Use(auth.TokenMiddleware(h.tokens))

			r.Get("/whoami", h.HandleWhoami)
			r.With(auth.RequireAction(LogLevelAction)).Post("/loglevel", h.HandleSetLogLevel)
		})
	}

	return r
}
