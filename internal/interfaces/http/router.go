// Package http exposes the descriptor catalog and batch calculation over
// HTTP.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/moldesc/internal/interfaces/http/handlers"
	"github.com/turtacn/moldesc/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware dependencies of the
// route tree. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	DescriptorHandler  *handlers.DescriptorHandler
	CalculationHandler *handlers.CalculationHandler
	HealthHandler      *handlers.HealthHandler

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	// MetricsPath defaults to /metrics.
	MetricsPath string
	// CalculateRateLimit throttles POST /api/v1/calculate when set.
	CalculateRateLimit *middleware.RateLimitConfig
	// CORSOrigins enables CORS for these origins.
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		registerDescriptorRoutes(api, cfg.DescriptorHandler)
		registerCalculationRoutes(api, cfg.CalculationHandler, cfg.CalculateRateLimit)
	})

	return r
}

func registerDescriptorRoutes(r chi.Router, h *handlers.DescriptorHandler) {
	if h == nil {
		return
	}
	r.Get("/descriptors", h.List)
	r.Post("/descriptors/decode", h.Decode)
}

func registerCalculationRoutes(r chi.Router, h *handlers.CalculationHandler, limit *middleware.RateLimitConfig) {
	if h == nil {
		return
	}
	if limit != nil {
		r.With(middleware.RateLimit(*limit)).Post("/calculate", h.Calculate)
	} else {
		r.Post("/calculate", h.Calculate)
	}
	r.Route("/runs", func(rr chi.Router) {
		rr.Get("/", h.ListRuns)
		rr.Get("/{runID}", h.GetRun)
		rr.Delete("/{runID}", h.DeleteRun)
	})
}
