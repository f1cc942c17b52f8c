// Package server provides the public entry point for initializing the
// MathQuest coach service.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/internal/api"
	"github.com/mathquest/coach-service/internal/api/handlers"
	"github.com/mathquest/coach-service/internal/cache"
	"github.com/mathquest/coach-service/internal/coach"
	"github.com/mathquest/coach-service/internal/config"
	"github.com/mathquest/coach-service/internal/ratelimit"
	"github.com/mathquest/coach-service/internal/retention"
	"github.com/mathquest/coach-service/internal/store"
	"github.com/mathquest/coach-service/internal/telemetry"
)

// Server holds the initialized coach service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (postgres when DATABASE_URL is set,
	// in-memory otherwise).
	Store store.Store

	// Config is the loaded service configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all service components from the environment and returns
// a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable at startup, continuing with local fallbacks")
		} else {
			log.Info().Msg("Redis connected")
		}
	} else {
		log.Info().Msg("REDIS_URL not set, using process-local cache and rate limiting")
	}

	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = pg
		log.Info().Msg("Postgres store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("In-memory store initialized")
	}

	var generator *coach.Generator
	if cfg.Provider.Configured() {
		generator = coach.NewGenerator(cfg.Provider)
		log.Info().Str("model", cfg.Provider.Model).Msg("Coach generator initialized")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, coaching endpoint will report unavailable")
	}

	moderator := coach.NewModerator(cfg.Provider.APIKey, cfg.Provider.ModerationModel)
	responseCache := cache.NewLayer(cfg.Provider.Model, cfg.Cache.TTL, rdb)
	limiter := ratelimit.NewLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window, rdb)

	// A typed nil *Generator must not reach the interface field, or the
	// handler's nil check would pass it through.
	var h *handlers.Handlers
	if generator != nil {
		h = handlers.New(dataStore, generator, moderator, limiter, responseCache)
	} else {
		h = handlers.New(dataStore, nil, moderator, limiter, responseCache)
	}
	router := api.NewRouter(cfg, h)

	// Sweep the local cache mirror and closed rate-limit windows; redis
	// handles its own expiry.
	janitor := retention.NewJanitor(cfg.Cache.TTL, map[string]retention.Sweepable{
		"cache":     responseCache,
		"ratelimit": limiter,
	})
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go janitor.Start(janitorCtx)

	return &Server{
		Handler: router,
		Store:   dataStore,
		Config:  cfg,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			stopJanitor()
			return shutdown(ctx)
		},
	}, nil
}
