package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stockwatch/stockwatch/internal/stock"
)

// Outcome is what happened to a single user during a cycle.
type Outcome string

const (
	OutcomeNoToken    Outcome = "no_push_token"
	OutcomeGated      Outcome = "gated"
	OutcomeNothingDue Outcome = "nothing_to_send"
	OutcomeDispatched Outcome = "dispatched"
	OutcomeBusy       Outcome = "in_progress"
	OutcomeFailed     Outcome = "failed"
)

// UserResult tracks the outcome of one user's pass through the pipeline.
type UserResult struct {
	UserID   string         `json:"userId"`
	Outcome  Outcome        `json:"outcome"`
	Low      int            `json:"lowStock"`
	Out      int            `json:"outOfStock"`
	Dispatch DispatchResult `json:"dispatch"`
	Error    string         `json:"error,omitempty"`
}

// CycleResult tracks the outcome of a full cycle across all users.
type CycleResult struct {
	TotalUsers        int           `json:"totalUsers"`
	UsersWithToken    int           `json:"usersWithToken"`
	UsersWithoutToken int           `json:"usersWithoutToken"`
	Notified          int           `json:"notified"`
	Skipped           int           `json:"skipped"`
	Failed            int           `json:"failed"`
	MessagesSent      int           `json:"messagesSent"`
	MessagesFailed    int           `json:"messagesFailed"`
	Duration          time.Duration `json:"-"`
	DurationMs        int64         `json:"durationMs"`
	Errors            []string      `json:"errors"`
}

// Summary returns a human-readable summary.
func (r *CycleResult) Summary() string {
	return fmt.Sprintf(
		"users=%d with_token=%d without_token=%d notified=%d skipped=%d failed=%d sent=%d send_failed=%d dur=%s",
		r.TotalUsers, r.UsersWithToken, r.UsersWithoutToken,
		r.Notified, r.Skipped, r.Failed,
		r.MessagesSent, r.MessagesFailed,
		r.Duration.Round(time.Millisecond))
}

func (r *CycleResult) add(ur UserResult) {
	switch ur.Outcome {
	case OutcomeDispatched:
		r.Notified++
	case OutcomeFailed:
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("user %s: %s", ur.UserID, ur.Error))
	default:
		r.Skipped++
	}
	r.MessagesSent += ur.Dispatch.Sent
	r.MessagesFailed += ur.Dispatch.Failed
}

// PipelineConfig tunes a Pipeline. Zero values take defaults.
type PipelineConfig struct {
	// Workers > 1 processes users concurrently. Users share no state, so
	// this is safe; the default of 1 bounds load on the store.
	Workers int

	// Locker, when set, serialises runs for the same user so a cycle and an
	// on-demand or realtime run cannot both dispatch.
	Locker      Locker
	UserLockTTL time.Duration

	// DryRun still builds and sends messages but writes no records and
	// leaves the last-notified timestamp alone.
	DryRun bool
	Now    func() time.Time
}

// Pipeline evaluates and notifies users.
type Pipeline struct {
	store       Store
	ledger      Ledger
	dispatcher  *Dispatcher
	locker      Locker
	userLockTTL time.Duration
	workers     int
	now         func() time.Time
	logger      *slog.Logger
}

// NewPipeline wires a pipeline over store and sender.
func NewPipeline(store Store, sender Sender, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.UserLockTTL <= 0 {
		cfg.UserLockTTL = DefaultUserLockTTL
	}
	var ledger Ledger = store
	if cfg.DryRun {
		ledger = discardLedger{}
	}
	return &Pipeline{
		store:       store,
		ledger:      ledger,
		dispatcher:  NewDispatcher(sender, ledger, logger),
		locker:      cfg.Locker,
		userLockTTL: cfg.UserLockTTL,
		workers:     cfg.Workers,
		now:         cfg.Now,
		logger:      logger,
	}
}

// RunCycle processes every user. A failure for one user is recorded and the
// cycle moves on; only failing to enumerate users returns an error.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	result := CycleResult{Errors: []string{}}

	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}

	result.TotalUsers = len(users)
	for _, u := range users {
		if u.PushToken != "" {
			result.UsersWithToken++
		} else {
			result.UsersWithoutToken++
		}
	}

	if p.workers == 1 || len(users) < 2 {
		for _, u := range users {
			if ctx.Err() != nil {
				break
			}
			result.add(p.processUser(ctx, u))
		}
	} else {
		p.runPool(ctx, users, &result)
	}

	result.Duration = time.Since(start)
	result.DurationMs = result.Duration.Milliseconds()
	p.logger.Info("Stock check cycle complete", "summary", result.Summary())
	return result, nil
}

func (p *Pipeline) runPool(ctx context.Context, users []User, result *CycleResult) {
	workers := min(p.workers, len(users))
	ch := make(chan User, len(users))
	for _, u := range users {
		ch <- u
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range ch {
				if ctx.Err() != nil {
					return
				}
				ur := p.processUser(ctx, u)
				mu.Lock()
				result.add(ur)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// RunForUser runs the pipeline for a single user, still subject to the gate.
func (p *Pipeline) RunForUser(ctx context.Context, userID string) (UserResult, error) {
	u, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return UserResult{UserID: userID}, fmt.Errorf("get user: %w", err)
	}
	return p.processUser(ctx, u), nil
}

// processUser is the per-user error boundary: errors and panics become an
// OutcomeFailed result instead of escaping.
func (p *Pipeline) processUser(ctx context.Context, u User) (res UserResult) {
	res.UserID = u.ID
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Error = fmt.Sprintf("panic: %v", r)
			p.logger.Error("stock check panicked", "user_id", u.ID, "panic", r)
		}
	}()

	if err := p.runUser(ctx, u, &res); err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		p.logger.Warn("stock check failed", "user_id", u.ID, "error", err)
	}
	return res
}

func (p *Pipeline) runUser(ctx context.Context, u User, res *UserResult) error {
	if u.PushToken == "" {
		res.Outcome = OutcomeNoToken
		return nil
	}

	if p.locker != nil {
		unlock, ok, err := p.locker.TryLock(ctx, userLockPrefix+u.ID, p.userLockTTL)
		if err != nil {
			return fmt.Errorf("acquire user lock: %w", err)
		}
		if !ok {
			res.Outcome = OutcomeBusy
			return nil
		}
		defer unlock()
	}

	prefs, err := p.store.LoadPreferences(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	now := p.now()
	if !ShouldNotify(now, prefs.LastNotified, prefs.Settings) {
		res.Outcome = OutcomeGated
		return nil
	}

	items, err := p.store.ListItems(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	scan := stock.Scan(items, prefs.GlobalThreshold)
	res.Low, res.Out = len(scan.Low), len(scan.Out)

	msgs := BuildMessages(u, scan, prefs.Settings)
	if len(msgs) == 0 {
		res.Outcome = OutcomeNothingDue
		return nil
	}

	res.Dispatch = p.dispatcher.Dispatch(ctx, u, msgs, now)
	res.Outcome = OutcomeDispatched

	// Touch once per attempted dispatch, whatever the per-message outcome.
	if err := p.ledger.Touch(ctx, u.ID, now); err != nil {
		return fmt.Errorf("touch last notification: %w", err)
	}

	p.logger.Info("Stock alerts dispatched",
		"user_id", u.ID, "low", res.Low, "out", res.Out,
		"sent", res.Dispatch.Sent, "failed", res.Dispatch.Failed)
	return nil
}
