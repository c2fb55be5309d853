// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/logger"
)

var DB *sql.DB

// Init opens and pings the Postgres pool and stores it in DB.
func Init(cfg config.DBConfig) (*sql.DB, error) {
	log := logger.GetAppLogger()
	log.WithFields(map[string]interface{}{
		"host": cfg.Host,
		"name": cfg.Name,
	}).Info("🗄️ [DB] Connecting")

	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	log.Info("✅ [DB] Connected to database")
	DB = conn
	return conn, nil
}

// Migrate creates the tables the engine reads and writes.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const Schema = `
CREATE TABLE IF NOT EXISTS recipients (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL DEFAULT '',
    email     TEXT NOT NULL DEFAULT '',
    phone     TEXT NOT NULL DEFAULT '',
    chat_id   TEXT NOT NULL DEFAULT '',
    role      TEXT NOT NULL DEFAULT '',
    location  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS recipients_role_idx ON recipients (role);

CREATE TABLE IF NOT EXISTS broadcasts (
    id                TEXT PRIMARY KEY,
    subject           TEXT NOT NULL,
    body_html         TEXT NOT NULL DEFAULT '',
    sms_body          TEXT NOT NULL DEFAULT '',
    video_url         TEXT NOT NULL DEFAULT '',
    cta_url           TEXT NOT NULL DEFAULT '',
    cta_label         TEXT NOT NULL DEFAULT '',
    recipient_ids     TEXT[] NOT NULL DEFAULT '{}',
    roles             TEXT[] NOT NULL DEFAULT '{}',
    channel_chat      BOOLEAN NOT NULL DEFAULT FALSE,
    channel_email     BOOLEAN NOT NULL DEFAULT FALSE,
    channel_sms       BOOLEAN NOT NULL DEFAULT FALSE,
    producer_channel  TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'draft',
    scheduled_at      TIMESTAMPTZ,
    sent_at           TIMESTAMPTZ,
    stats             JSONB,
    last_error        TEXT NOT NULL DEFAULT '',
    created_by        TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS broadcasts_due_idx ON broadcasts (status, scheduled_at);

CREATE TABLE IF NOT EXISTS deliveries (
    id               TEXT PRIMARY KEY,
    broadcast_id     TEXT NOT NULL REFERENCES broadcasts (id),
    recipient_id     TEXT NOT NULL,
    chat_status      TEXT NOT NULL,
    chat_message_id  TEXT NOT NULL DEFAULT '',
    chat_error       TEXT NOT NULL DEFAULT '',
    chat_sent_at     TIMESTAMPTZ,
    email_status     TEXT NOT NULL,
    email_message_id TEXT NOT NULL DEFAULT '',
    email_error      TEXT NOT NULL DEFAULT '',
    email_sent_at    TIMESTAMPTZ,
    sms_status       TEXT NOT NULL,
    sms_message_id   TEXT NOT NULL DEFAULT '',
    sms_error        TEXT NOT NULL DEFAULT '',
    sms_sent_at      TIMESTAMPTZ,
    read_at          TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS deliveries_recipient_created_idx ON deliveries (recipient_id, created_at);
CREATE INDEX IF NOT EXISTS deliveries_broadcast_idx ON deliveries (broadcast_id);
`
