// Package db provides the Postgres connection, schema migration, and the
// OAuth token rows shared by the YouTube connection and its refresher.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/robostem/matchjump/backend/crypto"
	"github.com/robostem/matchjump/backend/telemetry"
)

var (
	// encryptor seals OAuth tokens at rest; nil stores plaintext.
	encryptor crypto.Encryptor
	encMu     sync.RWMutex
)

// ConfigureEncryption installs the AES-256-GCM key (base64) used for OAuth
// tokens. An empty key disables encryption.
func ConfigureEncryption(key string) error {
	encMu.Lock()
	defer encMu.Unlock()
	if key == "" {
		encryptor = nil
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens and saved API keys will be stored in plaintext", slog.String("component", "db_encryption"))
		return nil
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	encryptor = enc
	slog.Info("token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	return nil
}

// Encryptor returns the configured encryptor, or nil.
func Encryptor() crypto.Encryptor {
	encMu.RLock()
	defer encMu.RUnlock()
	return encryptor
}

// Connect opens a Postgres connection pool for dsn.
func Connect(dsn string) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxIdleTime(5 * time.Minute)
	return database, nil
}

// ReportPoolMetrics publishes connection pool gauges every interval until ctx ends.
func ReportPoolMetrics(ctx context.Context, database *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			stats := database.Stats()
			telemetry.UpdateDatabasePoolMetrics(stats.OpenConnections, stats.InUse)
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

// Migrate applies idempotent schema changes. It is the fallback when the
// versioned migrations cannot run.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			encryption_version INTEGER DEFAULT 0,
			encryption_key_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS short_links (
			code TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			sku TEXT NOT NULL,
			streams JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS event_history (
			event_id INTEGER PRIMARY KEY,
			sku TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			streams JSONB NOT NULL DEFAULT '[]'::jsonb,
			viewed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_history_viewed ON event_history(viewed_at DESC)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
