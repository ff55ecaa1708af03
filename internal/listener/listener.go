// Package listener provides a Postgres LISTEN/NOTIFY consumer for real-time
// stock checks. It holds a dedicated pgx connection (not from the pool)
// listening on the `inventory_changed` channel.
//
// When an inventory row is written, the Postgres trigger fires pg_notify with
// the owning user, and this consumer runs that user's stock check. The
// notification gate still applies, so bursts of edits produce at most one
// alert per user interval.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stockwatch/stockwatch/internal/notifications"
)

const (
	Channel          = "inventory_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// InventoryEvent is the JSON payload from pg_notify('inventory_changed', ...).
type InventoryEvent struct {
	UserID string `json:"user_id"`
}

// ParseEvent decodes a notification payload.
func ParseEvent(payload string) (InventoryEvent, error) {
	var ev InventoryEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	if ev.UserID == "" {
		return ev, errors.New("missing user_id")
	}
	return ev, nil
}

// UserRunner runs the stock check for one user.
type UserRunner interface {
	RunForUser(ctx context.Context, userID string) (notifications.UserResult, error)
}

// Listener consumes inventory events and runs per-user checks.
type Listener struct {
	dbURL  string
	runner UserRunner
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// New creates a listener. Call Start to begin consuming.
func New(dbURL string, runner UserRunner, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		dbURL:    dbURL,
		runner:   runner,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// Start opens a dedicated connection and listens on the inventory_changed
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled and in-flight checks finish. Intended to be called with `go`.
func (l *Listener) Start(ctx context.Context) {
	defer l.wg.Wait()
	backoff := reconnectBackoff

	for {
		err := l.listenLoop(ctx)
		if ctx.Err() != nil {
			l.logger.Info("Inventory listener stopped (context cancelled)")
			return
		}

		l.logger.Error("Inventory listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func (l *Listener) listenLoop(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	l.logger.Info("Inventory listener connected", "channel", Channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.Handle(ctx, n.Payload)
	}
}

// Handle processes one payload. The check runs asynchronously so the
// listener never blocks; an event for a user whose check is still running
// is dropped.
func (l *Listener) Handle(ctx context.Context, payload string) bool {
	ev, err := ParseEvent(payload)
	if err != nil {
		l.logger.Warn("Failed to parse inventory event", "payload", payload, "error", err)
		return false
	}

	l.mu.Lock()
	if l.inFlight[ev.UserID] {
		l.mu.Unlock()
		return false
	}
	l.inFlight[ev.UserID] = true
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.inFlight, ev.UserID)
			l.mu.Unlock()
		}()

		res, err := l.runner.RunForUser(ctx, ev.UserID)
		if err != nil {
			l.logger.Warn("Realtime stock check failed", "user_id", ev.UserID, "error", err)
			return
		}
		if res.Outcome == notifications.OutcomeDispatched {
			l.logger.Info("Realtime stock alerts dispatched",
				"user_id", ev.UserID, "sent", res.Dispatch.Sent, "failed", res.Dispatch.Failed)
		}
	}()
	return true
}

// Wait blocks until every check started by Handle has finished.
func (l *Listener) Wait() {
	l.wg.Wait()
}
