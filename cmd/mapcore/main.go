package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groundwork/mapcore/internal/config"
	"groundwork/mapcore/internal/db"
	"groundwork/mapcore/internal/featurestore"
	"groundwork/mapcore/internal/httpapi"
	"groundwork/mapcore/internal/hub"
	"groundwork/mapcore/internal/metrics"
)

func main() {
	addr := envOr("HTTP_ADDR", ":8080")
	logLevel := envOr("LOG_LEVEL", "info")
	logFormat := envOr("LOG_FORMAT", "json")
	databaseURL := envOr("DATABASE_URL", "")
	configPath := envOr("CONFIG_PATH", "")

	logger := httpapi.NewLogger(logLevel, logFormat)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *db.Pool
	var store featurestore.Store
	if databaseURL != "" {
		p, err := db.Open(ctx, databaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
		store = featurestore.NewPG(logger, pool)
	}

	m := metrics.New()

	sessions := hub.New(logger, m, hub.Options{
		MaxSessions: cfg.MaxSessions,
		SessionTTL:  cfg.SessionTTL,
	})
	go sessions.Run(ctx)

	h := httpapi.NewHandler(logger, sessions, pool, store, cfg, m)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("mapcore listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sessions.CloseAll()
	logger.Info().Msg("shutdown complete")
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
