// Package notifications runs the periodic stock-alert pipeline.
//
// Pipeline: enumerate users → gate on preferences and last-notified time →
// scan inventory → build at most two push messages → send → record each
// accepted message and touch the user's last-notified timestamp.
// A background scheduler runs a cycle on a fixed cadence; the same cycle can
// be triggered on demand.
package notifications

import (
	"context"
	"time"

	"github.com/stockwatch/stockwatch/internal/push"
	"github.com/stockwatch/stockwatch/internal/stock"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultCheckInterval = 5 * time.Minute
	DefaultLockTTL       = 10 * time.Minute
	DefaultUserLockTTL   = 2 * time.Minute
	defaultIntervalMins  = 60
	cycleLockKey         = "stockwatch:stock-check"
	userLockPrefix       = cycleLockKey + ":user:"
)

// Notification record types.
const (
	TypeLowStock   = "low-stock"
	TypeOutOfStock = "out-of-stock"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// User is an account that may receive stock alerts.
type User struct {
	ID        string
	PushToken string // empty when no device is registered
}

// Settings are a user's notification preferences.
type Settings struct {
	Enabled           bool `json:"enabled"`
	Interval          int  `json:"interval"` // minutes between cycles
	LowStockEnabled   bool `json:"lowStockEnabled"`
	OutOfStockEnabled bool `json:"outOfStockEnabled"`
}

// DefaultSettings is used when a user has stored no preferences.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		Interval:          defaultIntervalMins,
		LowStockEnabled:   true,
		OutOfStockEnabled: true,
	}
}

// Normalize replaces a non-positive interval with the default.
func (s Settings) Normalize() Settings {
	if s.Interval <= 0 {
		s.Interval = defaultIntervalMins
	}
	return s
}

// Preferences is everything the gate and the scan need from a user's
// settings row.
type Preferences struct {
	Settings        Settings
	GlobalThreshold int
	LastNotified    time.Time // zero when never notified
}

// Record is a persisted notification shown in the user's inbox.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	ItemIDs   []string  `json:"itemIds"`
	Type      string    `json:"type"`
}

// Ledger persists delivery bookkeeping.
type Ledger interface {
	// Record appends a notification record. No deduplication.
	Record(ctx context.Context, rec Record) error
	// Touch overwrites the user's last-notified timestamp.
	Touch(ctx context.Context, userID string, at time.Time) error
}

// Store is the read side of the pipeline plus its ledger.
type Store interface {
	Ledger
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	// LoadPreferences reads the user's settings row once, with defaults
	// filled in when the user has stored none.
	LoadPreferences(ctx context.Context, userID string) (Preferences, error)
	ListItems(ctx context.Context, userID string) ([]stock.Item, error)
}

// Sender delivers a single push message.
type Sender interface {
	Send(ctx context.Context, msg push.Message) (push.Ticket, error)
}

// Locker guards against overlapping cycles and concurrent runs for one user.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}
