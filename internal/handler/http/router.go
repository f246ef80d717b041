package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/showcase-search/internal/service"
	"github.com/utafrali/showcase-search/pkg/health"
	"github.com/utafrali/showcase-search/pkg/middleware"
)

const serviceName = "showcase-search"

// RouterConfig holds the router's tunables.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	cfg RouterConfig,
	searchService *service.SearchService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	searchHandler := NewSearchHandler(searchService, logger)

	r.Route("/api/v1/search", func(r chi.Router) {
		r.With(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)).Get("/products", searchHandler.Search)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/index", searchHandler.IndexProduct)
			r.Post("/bulk", searchHandler.BulkIndex)
			r.Delete("/{id}", searchHandler.DeleteProduct)
			r.Post("/reindex", searchHandler.Reindex)
		})
	})

	return r
}
