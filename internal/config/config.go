package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config captures runtime configuration values used by the entitlement service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql. Required for the postgres driver.
	DatabaseURL string

	// StoreDriver selects "postgres" (default) or "memory".
	StoreDriver string

	// BaselinePlanSlug identifies the floor plan restaurants fall back to. Defaults to "free".
	BaselinePlanSlug string

	// SweepInterval is the period of the scheduled expiration sweep. Zero disables it.
	SweepInterval time.Duration

	// BatchItemTimeout bounds each restaurant of a batch temporary upgrade.
	BatchItemTimeout time.Duration

	LogLevel  string
	LogFormat string
}

const (
	defaultServerAddress    = ":18111"
	defaultBaselinePlanSlug = "free"
	defaultSweepInterval    = time.Hour
	defaultBatchItemTimeout = 10 * time.Second
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"

	envServerAddress    = "BACKEND_ADDR"
	envDatabaseURL      = "DATABASE_URL"
	envStoreDriver      = "STORE_DRIVER"
	envBaselinePlanSlug = "BASELINE_PLAN_SLUG"
	envSweepInterval    = "SWEEP_INTERVAL"
	envBatchItemTimeout = "BATCH_ITEM_TIMEOUT"
	envLogLevel         = "LOG_LEVEL"
	envLogFormat        = "LOG_FORMAT"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:    firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:      strings.TrimSpace(os.Getenv(envDatabaseURL)),
		StoreDriver:      strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv(envStoreDriver)), StoreDriverPostgres)),
		BaselinePlanSlug: firstNonEmpty(strings.TrimSpace(os.Getenv(envBaselinePlanSlug)), defaultBaselinePlanSlug),
		LogLevel:         firstNonEmpty(os.Getenv(envLogLevel), defaultLogLevel),
		LogFormat:        firstNonEmpty(os.Getenv(envLogFormat), defaultLogFormat),
	}

	var err error
	if cfg.SweepInterval, err = durationFromEnv(envSweepInterval, defaultSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval < 0 {
		return Config{}, fmt.Errorf("%s must not be negative", envSweepInterval)
	}
	if cfg.BatchItemTimeout, err = durationFromEnv(envBatchItemTimeout, defaultBatchItemTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BatchItemTimeout <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envBatchItemTimeout)
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
		}
	case StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("%s must be %q or %q, got %q", envStoreDriver, StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	return cfg, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
