package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/ytgrabba/internal/api/handler"
	mw "github.com/iconidentify/ytgrabba/internal/api/middleware"
)

// RouterConfig holds router settings.
type RouterConfig struct {
	// APIKey protects /api/* when set.
	APIKey string
	// RateLimit and RateBurst bound download requests across all clients.
	RateLimit float64
	RateBurst int
	// RequestTimeout defaults to 10 minutes.
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	mediaHandler *handler.MediaHandler,
	pathHandler *handler.PathHandler,
	jobsHandler *handler.JobsHandler,
	healthHandler *handler.HealthHandler,
	cfg RouterConfig,
) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	// CORS for the browser frontend
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(mw.APIKeyAuth(cfg.APIKey))
		}

		r.Get("/stats", healthHandler.Stats)

		r.Post("/info", mediaHandler.Info)

		r.Get("/download-path", pathHandler.Get)
		r.Post("/download-path", pathHandler.Set)

		r.Get("/jobs", jobsHandler.List)
		r.Get("/jobs/{jobID}", jobsHandler.Get)

		// Downloads run external tools; limit them.
		r.Group(func(r chi.Router) {
			if cfg.RateLimit > 0 && cfg.RateBurst > 0 {
				r.Use(mw.RateLimit(cfg.RateLimit, cfg.RateBurst))
			}
			r.Post("/audio", mediaHandler.Audio)
			r.Post("/audio/{quality}", mediaHandler.Audio)
			r.Post("/video", mediaHandler.Video)
			r.Post("/video/{quality}", mediaHandler.Video)
		})
	})

	return r
}
