package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/MarketGo/pkg/health"
	"github.com/utafrali/MarketGo/pkg/middleware"
)

const serviceName = "promotion"

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	CORS             middleware.CORSConfig
	PreviewRateLimit float64
	PreviewBurst     int
	RequestTimeout   time.Duration
}

// NewRouter creates a chi router with all promotion service routes registered.
func NewRouter(
	promotions PromotionService,
	campaigns CampaignService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.PrometheusMetrics(serviceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	promotionHandler := NewPromotionHandler(promotions, logger)
	campaignHandler := NewCampaignHandler(campaigns, logger)

	r.Route("/api/v1/promotions", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.With(middleware.NewRateLimiter(cfg.PreviewRateLimit, cfg.PreviewBurst, logger).Handler).
			Post("/preview", promotionHandler.Preview)
		r.Post("/apply", promotionHandler.Apply)
		r.Post("/commit", promotionHandler.Commit)
		r.Post("/release", promotionHandler.Release)
	})

	r.Route("/api/v1/campaigns", func(r chi.Router) {
		r.Post("/", campaignHandler.CreateCampaign)
		r.With(middleware.CacheControl(5)).Get("/", campaignHandler.ListCampaigns)
		r.Get("/{id}", campaignHandler.GetCampaign)
		r.Delete("/{id}", campaignHandler.DeleteCampaign)
		r.Post("/{id}/{action}", campaignHandler.Transition)
	})

	return r
}
