// Package api wires the HTTP surface: middleware chain, public endpoints
// and the authenticated room/upload group.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/caretalk/caretalk/internal/api/middleware"
	"github.com/caretalk/caretalk/internal/config"
	"github.com/caretalk/caretalk/internal/handlers"
	"github.com/caretalk/caretalk/internal/hub"
	"github.com/caretalk/caretalk/internal/store"
	"github.com/caretalk/caretalk/internal/upload"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(
	cfg *config.Config,
	logger zerolog.Logger,
	data store.DataStore,
	redisStore *store.RedisStore,
	h *hub.Hub,
	uploads *upload.Coordinator,
	media *upload.MediaStore,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; without it the limiter is skipped.
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore, logger)
		r.Use(limiter.Middleware)
	}

	// CORS - clients are browser and mobile apps served from other origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	verifier := middleware.NewIdentityVerifier(cfg.IdentitySecret)
	handler := handlers.NewHandler(cfg, data, redisStore, h, uploads, media, verifier, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/healthz", handler.Health)

	// The websocket upgrade authenticates via query token, not header.
	r.Get("/ws", handler.ServeWS)

	// Authenticated routes (require identity token)
	r.Group(func(r chi.Router) {
		r.Use(verifier.RequireIdentity)

		// JSON bodies are small; only uploads carry real payloads.
		r.With(middleware.MaxBodySize(8 * 1024)).Post("/rooms", handler.CreateRoom)
		r.Get("/rooms/{id}", handler.GetRoom)
		r.Get("/rooms/{id}/messages", handler.GetRoomMessages)
		r.Post("/rooms/{id}/uploads", handler.Upload)
	})

	return r
}
