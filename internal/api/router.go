// Package api provides the HTTP API of the lead relay.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bargom/leadrelay/internal/api/handlers"
	"github.com/bargom/leadrelay/internal/api/middleware"
	"github.com/bargom/leadrelay/internal/auth"
	"github.com/bargom/leadrelay/internal/health"
	"github.com/bargom/leadrelay/pkg/logging"
	"github.com/bargom/leadrelay/pkg/metrics"
)

// PublicEndpoints are advertised by /health and by the 404 handler.
var PublicEndpoints = []string{
	"POST /api/assessment/analyze",
	"POST /api/assessment/score",
	"POST /api/assessment/complete",
	"GET /health",
}

// RouterConfig holds the router's collaborators. Nil optional fields
// disable the corresponding feature.
type RouterConfig struct {
	Relay  handlers.Relay
	Health *health.Handler
	Logger *slog.Logger

	// Metrics serves /metrics and records HTTP metrics.
	Metrics *metrics.Registry
	// Auth guards /api/webhooks. Without it the admin routes are not mounted.
	Auth *auth.Middleware
	// RateLimiter is applied to /api/assessment.
	RateLimiter *middleware.RateLimiter

	AllowedOrigins []string
	MaxBodyBytes   int64
	// LogHeaders adds the masked request headers to every request log line.
	LogHeaders bool
	// RequestTimeout defaults to 60 seconds. The analyze route waits for the
	// AI call, so keep it above the analysis client timeout.
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all routes and middleware configured.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	h := handlers.NewHandler(cfg.Relay, cfg.Logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	var logOpts []logging.MiddlewareOption
	if cfg.LogHeaders {
		logOpts = append(logOpts, logging.LogHeaders())
	}
	r.Use(logging.NewHTTPMiddleware(cfg.Logger, logOpts...).Handler)
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(metrics.HTTPMiddlewareWithOptions(cfg.Metrics, metrics.MiddlewareOptions{
			SkipPaths: []string{"/metrics", "/health/live"},
		}))
	}
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.MaxBody(cfg.MaxBodyBytes))
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.NotFound(handlers.NotFound(PublicEndpoints))
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/assessment", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		r.Post("/score", h.Score)
		r.Post("/analyze", h.Analyze)
		r.Post("/complete", h.Complete)
	})

	if cfg.Auth != nil {
		r.Route("/api/webhooks", func(r chi.Router) {
			r.Use(cfg.Auth.RequireAuth, auth.RequireRole(auth.RoleAdmin))

			r.Get("/endpoints", h.ListEndpoints)
			r.Put("/endpoints/{name}", h.SetEndpoint)
			r.Post("/endpoints/{name}/test", h.TestEndpoint)

			r.Get("/queue", h.QueueStatus)
			r.Post("/queue/drain", h.DrainQueue)
			r.Delete("/queue", h.ClearQueue)

			r.Post("/connectivity", h.SetConnectivity)
		})
	}

	return r
}
