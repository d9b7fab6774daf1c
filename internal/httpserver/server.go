package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/config"
	"github.com/PortNumber53/resto-entitlements/internal/handlers"
	"github.com/PortNumber53/resto-entitlements/internal/metrics"
	requesttracking "github.com/PortNumber53/resto-entitlements/internal/middleware"
	"github.com/PortNumber53/resto-entitlements/internal/sweeper"
)

// Deps are the services the server exposes. DB, Gatherer, Metrics and
// Scheduler are optional.
type Deps struct {
	API       *handlers.API
	DB        handlers.Pinger
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.Metrics
	Scheduler *sweeper.Scheduler
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	scheduler  *sweeper.Scheduler
}

// New constructs an HTTP server using the provided configuration and services.
func New(cfg config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requesttracking.NewRequestTracker(deps.Metrics).Middleware())

	router.Get("/healthz", handlers.Health(deps.DB))
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.API != nil {
		deps.API.RegisterRoutes(router)
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, scheduler: deps.Scheduler}
}

// Start starts the sweep scheduler, if any, and serves HTTP traffic until
// Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.scheduler != nil {
		log.Info().Msg("Starting sweep scheduler")
		s.scheduler.Start(ctx)
	}
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and the scheduler.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.scheduler != nil {
		log.Info().Msg("Shutting down sweep scheduler")
		if serr := s.scheduler.Stop(ctx); serr != nil {
			log.Warn().Err(serr).Msg("Sweep scheduler shutdown error")
		}
	}
	return err
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
