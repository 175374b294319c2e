// Package api provides the HTTP surface of the schedule daemon: health checks,
// run status and the Prometheus scrape endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
)

//go:generate mockgen -destination=mocks/mock_server.go -package=mocks -source=server.go ReadinessChecker,StateReporter

// ReadinessChecker reports whether the daemon can serve traffic, e.g. the database answers
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// StateReporter exposes the phase the orchestrator is in
type StateReporter interface {
	State() orchestrator.State
}

// ServerOption configures the daemon API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	readiness      ReadinessChecker
	state          StateReporter
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithReadinessChecker sets the check behind /readiness. Without one the daemon is always ready.
func WithReadinessChecker(rc ReadinessChecker) ServerOption {
	return func(cfg *serverConfig) {
		cfg.readiness = rc
	}
}

// WithStateReporter adds the orchestrator phase to /status
func WithStateReporter(sr StateReporter) ServerOption {
	return func(cfg *serverConfig) {
		cfg.state = sr
	}
}

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// NewServer creates and configures the HTTP router over the persisted run status
func NewServer(statuses status.StatusPersistence, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", HealthRouter(cfg.readiness))
	r.Mount("/status", StatusRouter(statuses, cfg.state))

	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
