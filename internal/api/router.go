package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mathquest/coach-service/internal/api/handlers"
	"github.com/mathquest/coach-service/internal/api/middleware"
	"github.com/mathquest/coach-service/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// The coaching pipeline is rate limited per client identity
		// rather than authenticated.
		r.Post("/coach", h.CoachChat)

		// Learner progress routes require a bearer key and user identity.
		auth := middleware.NewBearerAuth(cfg.Auth.APIKeys)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Post("/attempts", h.RecordAttempt)
			r.Get("/questions", h.ListQuestions)
			r.Post("/questions", h.CreateQuestion)
			r.Get("/streaks", h.GetStreak)
			r.Post("/streaks", h.UpdateStreak)
			r.Get("/users/stats", h.UserStats)
			r.Post("/profile/sync", h.SyncProfile)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "mathquest-coach",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "mathquest-coach",
		})
	}
}
