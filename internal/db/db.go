// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockwatch/stockwatch/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the API, pipeline and
// CLI use. Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Users & push destinations
		"list_users":          "SELECT id, COALESCE(push_token, '') FROM users ORDER BY id",
		"get_user":            "SELECT id, COALESCE(push_token, '') FROM users WHERE id = $1",
		"set_user_push_token": "UPDATE users SET push_token = NULLIF($2, ''), updated_at = NOW() WHERE id = $1",

		// Settings documents
		"user_settings": "SELECT settings, last_stock_notification FROM user_settings WHERE user_id = $1",
		"upsert_user_settings": `INSERT INTO user_settings (user_id, settings, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (user_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = NOW()`,
		"touch_last_notification": `INSERT INTO user_settings (user_id, last_stock_notification, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (user_id) DO UPDATE SET last_stock_notification = EXCLUDED.last_stock_notification, updated_at = NOW()`,

		// Inventory
		"user_inventory": "SELECT id, data FROM inventory_items WHERE user_id = $1 ORDER BY created_at, id",

		// Notification records
		"insert_notification": `INSERT INTO notifications (id, user_id, title, message, type, item_ids, read, created_at)
			VALUES ($1::text::uuid, $2, $3, $4, $5, $6, false, $7)`,
		"list_notifications": `SELECT id::text, user_id, title, message, type, item_ids, read, created_at
			FROM notifications WHERE user_id = $1 AND (NOT $2 OR read = false)
			ORDER BY created_at DESC LIMIT $3`,
		"mark_notification_read":      "UPDATE notifications SET read = true WHERE id = $1::text::uuid AND user_id = $2",
		"mark_all_notifications_read": "UPDATE notifications SET read = true WHERE user_id = $1 AND read = false",
		"purge_read_notifications":    "DELETE FROM notifications WHERE read = true AND created_at < $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
