package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/tripflow/internal/adapter/api/handler"
	"github.com/V4T54L/tripflow/internal/adapter/api/middleware"
	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/domain"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router for the read API.
// Requests pass rate limiting and authentication before reaching the query
// engine. m may be nil.
func NewRouter(
	logger *slog.Logger,
	m *metrics.Metrics,
	apiKeyRepo domain.APIKeyRepository,
	limiter domain.RateLimiter,
	pager handler.TripPager,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger, m))

	r.Get("/health", handler.Health)

	trips := handler.NewTripsHandler(pager, logger)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, logger, m))
		r.Use(middleware.Auth(apiKeyRepo, logger))
		r.Method(http.MethodGet, "/taxi_trips", trips)
		r.Method(http.MethodGet, "/taxi_trips/", trips)
	})

	return r
}

// NewAdminRouter serves operational endpoints: /health and the given
// metrics handler.
func NewAdminRouter(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handler.Health)
	r.Handle("/metrics", metricsHandler)
	return r
}
