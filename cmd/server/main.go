package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/PortNumber53/resto-entitlements/internal/app"
	"github.com/PortNumber53/resto-entitlements/internal/config"
	"github.com/PortNumber53/resto-entitlements/internal/httpserver"
	"github.com/PortNumber53/resto-entitlements/internal/logging"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "server"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	srv := httpserver.New(cfg, httpserver.Deps{
		API:       a.API(),
		DB:        a.Pinger(),
		Gatherer:  a.Registry,
		Metrics:   a.Metrics,
		Scheduler: a.Scheduler,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().
		Str("addr", cfg.ServerAddress).
		Str("store", cfg.StoreDriver).
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("Entitlement service starting")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}
