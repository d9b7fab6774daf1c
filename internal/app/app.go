// Package app assembles the entitlement services from configuration. Both
// the HTTP server and the ops CLI build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/resto-entitlements/internal/apperrors"
	"github.com/PortNumber53/resto-entitlements/internal/audit"
	"github.com/PortNumber53/resto-entitlements/internal/catalog"
	"github.com/PortNumber53/resto-entitlements/internal/clock"
	"github.com/PortNumber53/resto-entitlements/internal/config"
	"github.com/PortNumber53/resto-entitlements/internal/entitlements"
	"github.com/PortNumber53/resto-entitlements/internal/handlers"
	"github.com/PortNumber53/resto-entitlements/internal/metrics"
	"github.com/PortNumber53/resto-entitlements/internal/migrations"
	"github.com/PortNumber53/resto-entitlements/internal/models"
	"github.com/PortNumber53/resto-entitlements/internal/overlay"
	"github.com/PortNumber53/resto-entitlements/internal/store"
	"github.com/PortNumber53/resto-entitlements/internal/store/memory"
	"github.com/PortNumber53/resto-entitlements/internal/sweeper"
)

// Backend is what a storage driver must provide.
type Backend interface {
	catalog.Store
	overlay.Store
	audit.EventStore
	sweeper.Candidates
}

// App holds the wired services.
type App struct {
	Config   config.Config
	DB       *sql.DB // nil for the memory driver
	Backend  Backend
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Catalog   *catalog.Catalog
	Recorder  *audit.Recorder
	Resolver  *entitlements.Resolver
	Manager   *overlay.Manager
	Sweeper   *sweeper.Sweeper
	Scheduler *sweeper.Scheduler // nil when SweepInterval is zero
}

// Options tune Open.
type Options struct {
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// SkipMigrations leaves the schema untouched.
	SkipMigrations bool
}

// Open connects the configured store and builds every service.
func Open(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{Config: cfg, Registry: reg, Metrics: metrics.New(reg)}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := memory.New()
		mem.SetNow(clk.Now)
		a.Backend = mem
		log.Warn().Msg("Using in-memory store; data is lost on exit")
	default:
		db, err := openPostgres(ctx, cfg.DatabaseURL, !opts.SkipMigrations)
		if err != nil {
			return nil, err
		}
		st, err := store.New(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.DB = db
		a.Backend = st
	}

	if err := a.build(ctx, clk); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, clk clock.Clock) error {
	var err error
	if a.Catalog, err = catalog.New(a.Backend, a.Config.BaselinePlanSlug); err != nil {
		return err
	}
	if err := a.ensureBaseline(ctx); err != nil {
		return err
	}

	a.Recorder = audit.NewRecorder(a.Backend, clk, a.Metrics)
	if a.Resolver, err = entitlements.NewResolver(a.Catalog, a.Backend, a.Recorder, a.Metrics); err != nil {
		return err
	}
	if a.Manager, err = overlay.NewManager(a.Backend, overlay.Options{
		BaselineSlug:     a.Config.BaselinePlanSlug,
		BatchItemTimeout: a.Config.BatchItemTimeout,
		Clock:            clk,
		Recorder:         a.Recorder,
	}); err != nil {
		return err
	}
	if a.Sweeper, err = sweeper.New(a.Backend, a.Manager, clk, a.Metrics); err != nil {
		return err
	}

	if a.Config.SweepInterval > 0 {
		sc := sweeper.DefaultSchedulerConfig()
		sc.Interval = a.Config.SweepInterval
		if a.Scheduler, err = sweeper.NewScheduler(sc, a.Sweeper); err != nil {
			return err
		}
		a.Scheduler.SetInstrumentation(sweeper.Instrumentation{OnHeartbeat: sweeper.LogHeartbeat})
	}
	return nil
}

// ensureBaseline creates the floor plan when the store lacks it. The
// postgres schema seeds "free"; a custom slug or the memory store may not
// have one yet.
func (a *App) ensureBaseline(ctx context.Context) error {
	_, err := a.Catalog.Baseline(ctx)
	if err == nil {
		return nil
	}
	if !apperrors.IsNotFound(err) {
		return err
	}
	slug := a.Catalog.BaselineSlug()
	_, err = a.Catalog.Create(ctx, &models.Plan{
		Slug:      slug,
		Name:      strings.ToUpper(slug[:1]) + slug[1:],
		Features:  []string{},
		Limits:    models.Limits{},
		IsVisible: true,
		IsActive:  true,
	})
	if err != nil && !apperrors.IsConflict(err) {
		return fmt.Errorf("app: create baseline plan %q: %w", slug, err)
	}
	log.Info().Str("slug", slug).Msg("Baseline plan created")
	return nil
}

// API returns the HTTP surface over the wired services.
func (a *App) API() *handlers.API {
	api := &handlers.API{
		Plans:         a.Catalog,
		Subscriptions: a.Manager,
		Access:        a.Resolver,
		Sweeper:       a.Sweeper,
		Events:        a.Recorder,
	}
	if a.Scheduler != nil {
		api.Scheduler = a.Scheduler
	}
	return api
}

// Pinger returns the database for health checks, or nil.
func (a *App) Pinger() handlers.Pinger {
	if a.DB == nil {
		return nil
	}
	return a.DB
}

// Close releases the database connection.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// OpenDB opens and pings a Postgres pool without running migrations.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	return openPostgres(ctx, dsn, false)
}

func openPostgres(ctx context.Context, dsn string, migrate bool) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logDBTarget("primary", dsn)
	configureDB(db)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if migrate {
		if err := runMigrationsWithDirtyFix(db, "primary"); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply database migrations: %w", err)
		}
	}
	return db, nil
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB, name string) error {
	err := migrations.Up(db)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "Dirty database version") {
		return err
	}
	log.Warn().Err(err).Str("db", name).Msg("Dirty database detected, attempting to fix")
	if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
		log.Error().Err(fixErr).Str("db", name).Msg("Failed to fix dirty database")
		return err
	}
	return migrations.Up(db)
}

func logDBTarget(name, dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Info().Str("db", name).Err(err).Msg("Database configured (dsn parse error)")
		return
	}
	log.Info().
		Str("db", name).
		Str("host", u.Hostname()).
		Str("database", strings.TrimPrefix(u.Path, "/")).
		Msg("Database configured")
}

var (
	_ Backend = (*store.Store)(nil)
	_ Backend = (*memory.Store)(nil)
)
