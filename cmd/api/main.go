// Command api is the Stockwatch API server. Besides serving HTTP it runs
// the periodic stock check, the inventory listener and maintenance tickers.
//
// Usage:
//
//	stockwatch-api
//	API_PORT=8080 stockwatch-api

// @title Stockwatch API
// @version 1.0.0
// @description Inventory backend: low-stock push notifications, notification inbox, user settings, stock statistics and category suggestions.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Stockwatch
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stockwatch/stockwatch/internal/api"
	"github.com/stockwatch/stockwatch/internal/api/handler"
	"github.com/stockwatch/stockwatch/internal/cache"
	"github.com/stockwatch/stockwatch/internal/config"
	"github.com/stockwatch/stockwatch/internal/db"
	"github.com/stockwatch/stockwatch/internal/external"
	"github.com/stockwatch/stockwatch/internal/listener"
	"github.com/stockwatch/stockwatch/internal/lock"
	"github.com/stockwatch/stockwatch/internal/maintenance"
	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/push"
	"github.com/stockwatch/stockwatch/internal/store"

	_ "github.com/stockwatch/stockwatch/docs" // swagger docs
)

const version = "1.0.0"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	st := store.New(pool.Pool)

	appCache := cache.New(cfg.CacheEnabled)
	go appCache.Run(ctx.Done())
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Push gateway, or a logging sender when pushes are disabled
	var sender notifications.Sender
	if cfg.PushEnabled {
		sender = push.NewClient(push.Options{
			GatewayURL:    cfg.PushGatewayURL,
			AccessToken:   cfg.PushAccessToken,
			Timeout:       cfg.PushTimeout,
			RatePerSecond: cfg.PushRatePerSecond,
		}, logger)
		logger.Info("Push gateway configured", "url", cfg.PushGatewayURL)
	} else {
		sender = notifications.NewLogSender(logger)
		logger.Info("Push gateway disabled (PUSH_ENABLED=false), alerts are logged only and not recorded")
	}

	// Cycle lock: Redis when configured so several replicas never overlap
	var locker notifications.Locker
	if cfg.HasRedis() {
		rl := lock.NewRedis(cfg.RedisAddrs, cfg.RedisPassword, cfg.RedisUseCluster, logger)
		defer rl.Close()
		if err := rl.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, cycle lock attempts will fail until it recovers", "error", err)
		}
		locker = rl
		logger.Info("Cycle lock backed by Redis", "addrs", cfg.RedisAddrs)
	} else {
		locker = lock.NewLocal()
		logger.Info("Cycle lock is in-process (no REDIS_ADDR)")
	}

	// Cycles, realtime events and manual triggers share the locker, so one
	// user is never dispatched twice concurrently.
	pipeline := notifications.NewPipeline(st, sender, notifications.PipelineConfig{
		Workers:     cfg.CheckWorkers,
		Locker:      locker,
		UserLockTTL: cfg.UserLockTTL,
		DryRun:      !cfg.PushEnabled,
	}, logger)
	trigger := notifications.NewTrigger(pipeline, locker, cfg.CycleLockTTL, logger)

	if cfg.SchedulerEnabled {
		go trigger.Start(ctx, cfg.CheckInterval)
	} else {
		logger.Info("Stock check scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	// Start LISTEN/NOTIFY consumer for inventory edits
	if cfg.ListenerEnabled {
		go listener.New(cfg.DatabaseURL, pipeline, logger).Start(ctx)
	}

	go maintenance.Start(ctx, st, maintenance.Config{
		CleanupInterval: cfg.CleanupInterval,
		Retention:       cfg.NotificationRetention,
	}, logger)

	categories, err := external.NewCategoryService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logger.Warn("Category suggestion unavailable", "error", err)
	}
	logger.Info("Category suggestion", "configured", categories.Configured())

	router := api.NewRouter(handler.Deps{
		Store:      st,
		Cycle:      trigger,
		Users:      pipeline,
		Categories: categories,
		Cache:      appCache,
		Logger:     logger,
		Version:    version,
	}, cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.PushTimeout + 60*time.Second, // manual trigger runs a whole cycle
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Stockwatch API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
