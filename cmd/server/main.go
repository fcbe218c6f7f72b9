package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/caretalk/caretalk/internal/api"
	"github.com/caretalk/caretalk/internal/config"
	"github.com/caretalk/caretalk/internal/hub"
	"github.com/caretalk/caretalk/internal/store"
	"github.com/caretalk/caretalk/internal/upload"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the room directory: PostgreSQL when configured, SQLite
	// otherwise.
	var data store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		data = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		data = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer data.Close()

	// Initialize Redis (history + rate limiting); optional in development.
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Upload coordinator and its janitor
	uploads := upload.NewCoordinator(time.Hour, logger)
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go uploads.Janitor(janitorCtx, 5*time.Minute)

	var media *upload.MediaStore
	if cfg.MediaStoreURL != "" {
		media = upload.NewMediaStore(cfg.MediaStoreURL, logger)
	} else {
		logger.Warn().Msg("MEDIA_STORE_URL not set; uploads disabled")
	}

	// The routing core. Without Redis, history is not persisted.
	var sink hub.EnvelopeSink
	if redisStore != nil {
		sink = redisStore
	}
	core := hub.New(data, sink, uploads, hub.Options{
		RingTimeout:    cfg.RingTimeout,
		SendQueueSize:  cfg.SendQueueSize,
		RoomMaxMembers: cfg.RoomMaxMembers,
	}, logger)

	// Create router
	router := api.NewRouter(cfg, logger, data, redisStore, core, uploads, media)

	// Create server. Write timeout stays unset: websocket connections are
	// long-lived and manage their own deadlines.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting caretalk server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	core.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
