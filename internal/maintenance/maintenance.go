// Package maintenance runs periodic background tasks as Go tickers.
// All scheduled work is driven from Go since the API is already a
// persistent, long-running service.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval time.Duration // Old read notification records
	Retention       time.Duration // Age after which read records are purged
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval: 6 * time.Hour,
		Retention:       30 * 24 * time.Hour,
	}
}

// Purger deletes read notification records older than a cutoff.
type Purger interface {
	PurgeRead(ctx context.Context, cutoff time.Time) (int64, error)
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, purger Purger, cfg Config, logger *slog.Logger) {
	if cfg.CleanupInterval <= 0 || cfg.Retention <= 0 {
		logger.Info("Maintenance tickers disabled")
		return
	}
	logger.Info("Maintenance tickers started",
		"cleanup", cfg.CleanupInterval,
		"retention", cfg.Retention)

	t := time.NewTicker(cfg.CleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if _, err := Cleanup(ctx, purger, cfg.Retention, time.Now(), logger); err != nil {
				logger.Warn("Cleanup: failed to purge old notifications", "error", err)
			}
		case <-ctx.Done():
			logger.Info("Maintenance tickers stopped")
			return
		}
	}
}

// Cleanup purges read notification records older than retention relative
// to now. Unread records are kept regardless of age.
func Cleanup(ctx context.Context, purger Purger, retention time.Duration, now time.Time, logger *slog.Logger) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}
	n, err := purger.PurgeRead(ctx, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("Cleanup: purged old notifications", "count", n)
	}
	return n, nil
}
