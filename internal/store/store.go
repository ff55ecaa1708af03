// Package store implements persistence for users, settings, inventory and
// notification records on Postgres. Every query is a prepared statement
// registered in package db.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/stock"
)

// ErrNotFound is returned when a user or record does not exist.
var ErrNotFound = errors.New("not found")

// foreignKeyViolation is the SQLSTATE for writes that reference a missing
// user row.
const foreignKeyViolation = "23503"

// notFoundOnMissingUser maps a foreign-key violation to ErrNotFound.
func notFoundOnMissingUser(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrNotFound
	}
	return err
}

// Store is the Postgres-backed store. It satisfies notifications.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ notifications.Store = (*Store)(nil)

// HealthCheck runs a trivial query to verify the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	var n int
	return s.pool.QueryRow(ctx, "health_check").Scan(&n)
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

// ListUsers returns every user with their push token (empty when none).
func (s *Store) ListUsers(ctx context.Context) ([]notifications.User, error) {
	rows, err := s.pool.Query(ctx, "list_users")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []notifications.User
	for rows.Next() {
		var u notifications.User
		if err := rows.Scan(&u.ID, &u.PushToken); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser returns a single user.
func (s *Store) GetUser(ctx context.Context, userID string) (notifications.User, error) {
	var u notifications.User
	err := s.pool.QueryRow(ctx, "get_user", userID).Scan(&u.ID, &u.PushToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetPushToken registers (or clears, with an empty token) a user's push
// destination.
func (s *Store) SetPushToken(ctx context.Context, userID, token string) error {
	tag, err := s.pool.Exec(ctx, "set_user_push_token", userID, token)
	if err != nil {
		return fmt.Errorf("set push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --------------------------------------------------------------------------
// Settings
// --------------------------------------------------------------------------

// LoadUserSettings returns the user's settings document with defaults filled
// in, and the last-notified time (zero when never notified).
func (s *Store) LoadUserSettings(ctx context.Context, userID string) (UserSettings, time.Time, error) {
	var raw []byte
	var last *time.Time
	err := s.pool.QueryRow(ctx, "user_settings", userID).Scan(&raw, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultUserSettings(), time.Time{}, nil
	}
	if err != nil {
		return UserSettings{}, time.Time{}, fmt.Errorf("load settings: %w", err)
	}

	var lastAt time.Time
	if last != nil {
		lastAt = *last
	}
	return DecodeUserSettings(raw), lastAt, nil
}

// SaveUserSettings replaces the user's settings document. It returns
// ErrNotFound when the user does not exist.
func (s *Store) SaveUserSettings(ctx context.Context, userID string, us UserSettings) error {
	doc, err := json.Marshal(us)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "upsert_user_settings", userID, doc); err != nil {
		if errors.Is(notFoundOnMissingUser(err), ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadPreferences implements notifications.Store with one settings read.
func (s *Store) LoadPreferences(ctx context.Context, userID string) (notifications.Preferences, error) {
	us, last, err := s.LoadUserSettings(ctx, userID)
	if err != nil {
		return notifications.Preferences{}, err
	}
	return notifications.Preferences{
		Settings:        us.NotificationSettings,
		GlobalThreshold: us.GlobalLowStockThreshold,
		LastNotified:    last,
	}, nil
}

// --------------------------------------------------------------------------
// Inventory
// --------------------------------------------------------------------------

// ListItems returns the user's inventory in creation order. Item documents
// that fail to decode are kept with only their id, so they classify as out
// of stock rather than vanish.
func (s *Store) ListItems(ctx context.Context, userID string) ([]stock.Item, error) {
	rows, err := s.pool.Query(ctx, "user_inventory", userID)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	items := []stock.Item{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, DecodeItem(id, userID, raw))
	}
	return items, rows.Err()
}

// DecodeItem builds an item from its stored JSON document. The row id and
// owner always win over values inside the document.
func DecodeItem(id, userID string, raw []byte) stock.Item {
	var it stock.Item
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &it)
	}
	it.ID = id
	it.UserID = userID
	return it
}

// --------------------------------------------------------------------------
// Ledger
// --------------------------------------------------------------------------

// Record implements notifications.Ledger.
func (s *Store) Record(ctx context.Context, rec notifications.Record) error {
	ids := rec.ItemIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := s.pool.Exec(ctx, "insert_notification",
		rec.ID, rec.UserID, rec.Title, rec.Message, rec.Type, ids, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Touch implements notifications.Ledger.
func (s *Store) Touch(ctx context.Context, userID string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, "touch_last_notification", userID, at); err != nil {
		return fmt.Errorf("touch last notification: %w", notFoundOnMissingUser(err))
	}
	return nil
}

// --------------------------------------------------------------------------
// Inbox
// --------------------------------------------------------------------------

// ListNotifications returns the user's newest records first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notifications.Record, error) {
	rows, err := s.pool.Query(ctx, "list_notifications", userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	recs := []notifications.Record{}
	for rows.Next() {
		var r notifications.Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Message, &r.Type, &r.ItemIDs, &r.Read, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// MarkRead marks one record read.
func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, "mark_notification_read", id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread record of the user read and returns how
// many changed.
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, "mark_all_notifications_read", userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeRead deletes read records created before cutoff and returns how many
// were removed. Unread records are never purged.
func (s *Store) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "purge_read_notifications", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
