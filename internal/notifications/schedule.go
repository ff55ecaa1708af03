package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrCycleInProgress is returned by Trigger.Run when another cycle holds the lock.
var ErrCycleInProgress = errors.New("stock check cycle already in progress")

// Trigger runs pipeline cycles under a lock, either on a fixed cadence or
// on demand.
type Trigger struct {
	pipeline *Pipeline
	locker   Locker
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewTrigger creates a trigger. A nil locker disables overlap protection.
func NewTrigger(p *Pipeline, locker Locker, lockTTL time.Duration, logger *slog.Logger) *Trigger {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{pipeline: p, locker: locker, lockTTL: lockTTL, logger: logger}
}

// Run executes one full cycle.
func (t *Trigger) Run(ctx context.Context) (CycleResult, error) {
	if t.locker != nil {
		unlock, ok, err := t.locker.TryLock(ctx, cycleLockKey, t.lockTTL)
		if err != nil {
			return CycleResult{}, err
		}
		if !ok {
			return CycleResult{}, ErrCycleInProgress
		}
		defer unlock()
	}
	return t.pipeline.RunCycle(ctx)
}

// Start runs a cycle on every tick until ctx is cancelled. Blocks; intended
// to be called with `go`. The per-user interval is enforced by the gate, so
// interval here only bounds how late a user can be notified.
func (t *Trigger) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	t.logger.Info("Stock check scheduler started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			summary, err := t.Run(ctx)
			switch {
			case errors.Is(err, ErrCycleInProgress):
				t.logger.Info("Stock check skipped, previous cycle still running")
			case err != nil:
				t.logger.Error("stock check cycle failed", "error", err)
			case summary.Notified > 0 || summary.Failed > 0:
				t.logger.Info("stock check cycle", "summary", summary.Summary())
			}
		case <-ctx.Done():
			t.logger.Info("Stock check scheduler stopped")
			return
		}
	}
}
