// chatd serves the durable message store and the live channel for the
// application-chat subsystem.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/config"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/api"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/cache"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/database"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/queue"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/realtime"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	logger := log.With().Str("service", "chatd").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := database.Connect(connectCtx, cfg.DBURL)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer pool.Close()

	repo := repository.New(pool)
	hub := realtime.NewHub(logger)
	defer hub.Close()

	var presence *cache.Presence
	var queueClient *queue.Client
	if cfg.RedisURL != "" {
		presence, err = cache.NewFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to redis")
		}
		defer presence.Close()

		queueClient, err = queue.NewClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("create queue client")
		}
		defer queueClient.Close()

		worker, err := queue.NewServer(cfg.RedisURL, repo, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create queue worker")
		}
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("queue worker stopped")
			}
		}()
	} else {
		logger.Warn().Msg("CHAT_REDIS_URL not set, running without presence cache and audio worker")
	}

	handlers := api.New(repo, hub, presence, queueClient, cfg.AudioDir, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
