// Command stockctl is the Stockwatch operations CLI.
//
// Usage:
//
//	stockctl migrate
//	stockctl check run --workers 4
//	stockctl check user --id 7f1c...
//	stockctl cleanup --days 30
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stockwatch/stockwatch/internal/config"
	"github.com/stockwatch/stockwatch/internal/db"
	"github.com/stockwatch/stockwatch/internal/lock"
	"github.com/stockwatch/stockwatch/internal/maintenance"
	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/push"
	"github.com/stockwatch/stockwatch/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "stockctl",
		Short:        "Stockwatch operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(cleanupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema if absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			start := time.Now()
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Schema up to date", "duration", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// check command
// --------------------------------------------------------------------------

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the low-stock notification check",
	}
	cmd.AddCommand(checkRunCmd())
	cmd.AddCommand(checkUserCmd())
	return cmd
}

func checkRunCmd() *cobra.Command {
	var workers int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full cycle across all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				if workers > 0 {
					cfg.CheckWorkers = workers
				}
				locker := newLocker(ctx, cfg)
				pipeline := newPipeline(cfg, st, locker, dryRun)
				trigger := notifications.NewTrigger(pipeline, locker, cfg.CycleLockTTL, logger)

				result, err := trigger.Run(ctx)
				if err != nil {
					return err
				}
				logger.Info("Stock check finished", "summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("stock check error", "error", e)
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent users (default CHECK_WORKERS)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log messages instead of sending them")
	return cmd
}

func checkUserCmd() *cobra.Command {
	var userID string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Run the check for a single user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--id is required")
			}
			return withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				res, err := newPipeline(cfg, st, newLocker(ctx, cfg), dryRun).RunForUser(ctx, userID)
				if err != nil {
					return err
				}
				logger.Info("User check finished", "user_id", userID, "outcome", res.Outcome)
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "id", "", "User ID")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log messages instead of sending them")
	return cmd
}

// --------------------------------------------------------------------------
// cleanup command
// --------------------------------------------------------------------------

func cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge read notification records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				retention := cfg.NotificationRetention
				if days > 0 {
					retention = time.Duration(days) * 24 * time.Hour
				}
				n, err := maintenance.Cleanup(ctx, st, retention, time.Now(), logger)
				if err != nil {
					return err
				}
				logger.Info("Cleanup finished", "purged", n, "retention", retention)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default NOTIFICATION_RETENTION_DAYS)")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// withStore handles config loading, DB connection, and context cancellation.
func withStore(fn func(ctx context.Context, cfg *config.Config, st *store.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, store.New(pool.Pool))
}

// newPipeline builds the CLI pipeline. A dry run, or a run with push
// delivery disabled, logs messages and leaves the ledger untouched.
func newPipeline(cfg *config.Config, st *store.Store, locker notifications.Locker, dryRun bool) *notifications.Pipeline {
	dryRun = dryRun || !cfg.PushEnabled
	var sender notifications.Sender
	if dryRun {
		sender = notifications.NewLogSender(logger)
	} else {
		sender = push.NewClient(push.Options{
			GatewayURL:    cfg.PushGatewayURL,
			AccessToken:   cfg.PushAccessToken,
			Timeout:       cfg.PushTimeout,
			RatePerSecond: cfg.PushRatePerSecond,
		}, logger)
	}
	return notifications.NewPipeline(st, sender, notifications.PipelineConfig{
		Workers:     cfg.CheckWorkers,
		Locker:      locker,
		UserLockTTL: cfg.UserLockTTL,
		DryRun:      dryRun,
	}, logger)
}

// newLocker shares the API's Redis lock so a CLI run never overlaps a
// scheduled cycle or a per-user run. Without Redis there is nothing to
// coordinate with.
func newLocker(ctx context.Context, cfg *config.Config) notifications.Locker {
	if !cfg.HasRedis() {
		return lock.NewLocal()
	}
	rl := lock.NewRedis(cfg.RedisAddrs, cfg.RedisPassword, cfg.RedisUseCluster, logger)
	if err := rl.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable, running without cycle lock", "error", err)
		rl.Close()
		return nil
	}
	return rl
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
