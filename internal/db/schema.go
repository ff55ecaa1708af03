package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schema creates every table the service reads or writes. Settings and
// inventory rows keep the client's JSON document as-is; the core parses
// them leniently.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	email       TEXT,
	push_token  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id                  TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	settings                 JSONB,
	last_stock_notification  TIMESTAMPTZ,
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS inventory_items (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	data        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_user ON inventory_items(user_id, created_at);

CREATE TABLE IF NOT EXISTS notifications (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	type        TEXT NOT NULL CHECK (type IN ('low-stock', 'out-of-stock')),
	item_ids    TEXT[] NOT NULL DEFAULT '{}',
	read        BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC);

-- Realtime trigger: wake the pipeline for a user whenever their inventory changes.
CREATE OR REPLACE FUNCTION notify_inventory_changed() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('inventory_changed',
		json_build_object('user_id', NEW.user_id)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_inventory_changed ON inventory_items;
CREATE TRIGGER trg_inventory_changed
	AFTER INSERT OR UPDATE OF data ON inventory_items
	FOR EACH ROW EXECUTE FUNCTION notify_inventory_changed();
`

// Migrate creates the schema if it does not exist. Safe to run repeatedly.
// It uses a dedicated connection because pooled connections prepare
// statements against these tables on connect.
func Migrate(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'notifications')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("check notifications table: %w", err)
	}
	if !exists {
		return fmt.Errorf("notifications table missing after migration")
	}
	return nil
}
