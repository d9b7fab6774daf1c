package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PortNumber53/resto-entitlements/internal/app"
	"github.com/PortNumber53/resto-entitlements/internal/config"
	"github.com/PortNumber53/resto-entitlements/internal/logging"
	"github.com/PortNumber53/resto-entitlements/internal/migrations"
)

func main() {
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator tooling for the entitlement service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newMigrateCmd(), newSweepCmd())
	return root
}

func loadConfig(component string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	logging.Init(logging.Config{Format: "console", Level: cfg.LogLevel, Component: component})
	return cfg, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	withDB := func(fn func(cmd *cobra.Command, args []string, db *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("migrate")
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("migrations require STORE_DRIVER=%s", config.StoreDriverPostgres)
			}
			db, err := app.OpenDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd, args, db)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, _ []string, db *sql.DB) error {
				if err := migrations.Up(db); err != nil {
					return err
				}
				log.Info().Msg("Migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "fix",
			Short: "Clear the dirty flag left by a failed migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, _ []string, db *sql.DB) error {
				if err := migrations.FixDirtyDatabase(db); err != nil {
					return err
				}
				log.Info().Msg("Database fixed successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the recorded schema version",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, args []string, db *sql.DB) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version number %q", args[0])
				}
				if err := migrations.ForceVersion(db, uint(v)); err != nil {
					return err
				}
				log.Info().Uint64("version", v).Msg("Database version forced")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, _ []string, db *sql.DB) error {
				version, dirty, err := migrations.Status(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			}),
		},
	)
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiration sweep and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("sweep")
			if err != nil {
				return err
			}
			// The scheduler belongs to the server.
			cfg.SweepInterval = 0

			a, err := app.Open(cmd.Context(), cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.Sweeper.Run(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Failures() > 0 {
				return fmt.Errorf("sweep finished with %d failures", report.Failures())
			}
			return nil
		},
	}
}
