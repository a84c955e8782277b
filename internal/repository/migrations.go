package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		owner_id     TEXT NOT NULL,
		mailbox      TEXT NOT NULL,
		provider     TEXT NOT NULL,
		access_token TEXT NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (owner_id, mailbox, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		provider_id  TEXT NOT NULL,
		mailbox      TEXT NOT NULL,
		owner_id     TEXT NOT NULL,
		folder       TEXT NOT NULL DEFAULT '',
		sender       TEXT NOT NULL DEFAULT '',
		recipients   TEXT[] NOT NULL DEFAULT '{}',
		cc           TEXT[] NOT NULL DEFAULT '{}',
		bcc          TEXT[] NOT NULL DEFAULT '{}',
		subject      TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL DEFAULT '',
		preview      TEXT NOT NULL DEFAULT '',
		ts           TIMESTAMPTZ,
		read         BOOLEAN NOT NULL DEFAULT FALSE,
		important    BOOLEAN NOT NULL DEFAULT FALSE,
		flagged      BOOLEAN NOT NULL DEFAULT FALSE,
		is_processed BOOLEAN NOT NULL DEFAULT FALSE,
		enrichment   JSONB,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (provider_id, mailbox)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_owner_folder
		ON messages (owner_id, mailbox, folder, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS focus_items (
		id            BIGSERIAL PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		mailbox       TEXT NOT NULL,
		match_type    TEXT NOT NULL,
		match_value   TEXT NOT NULL,
		bucket        TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_activity TIMESTAMPTZ,
		message_count INT NOT NULL DEFAULT 0,
		active        BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_focus_items_owner
		ON focus_items (owner_id, mailbox, created_at)`,
}

// Migrate applies the schema. Statements are idempotent, so running it on
// every startup is safe.
func Migrate(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	logger.Info("Schema migrations applied", zap.Int("statements", len(migrations)))
	return nil
}
