// Package main encrypts secrets that were stored before ENCRYPTION_KEY was
// configured: plaintext OAuth tokens (encryption_version=0) and plaintext
// values under the "settings:" prefix of the kv table.
//
// Usage:
//
//	migrate-tokens [--dry-run] [--provider PROVIDER] [--skip-settings]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/robostem/matchjump/backend/crypto"
	"github.com/robostem/matchjump/backend/db"
	"github.com/robostem/matchjump/backend/kv"
)

const settingsPrefix = "settings:"

// TokenRow is one oauth_tokens row awaiting encryption.
type TokenRow struct {
	Provider     string
	AccessToken  string
	RefreshToken string
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	provider := flag.String("provider", "", "Migrate the token for one provider only (default: all)")
	skipSettings := flag.Bool("skip-settings", false, "Leave kv settings untouched")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required for migration")
		os.Exit(1)
	}
	encryptor, err := crypto.NewAESEncryptor(encryptionKey)
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.Connect(dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil || dirty || version == 0 {
		slog.Error("schema is not migrated; start the server once or fix the dirty version first",
			slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty), slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	if err := migrateTokens(ctx, database, encryptor, *dryRun, *provider); err != nil {
		slog.Error("token migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	if !*skipSettings {
		if err := sealSettings(ctx, &kv.Postgres{DB: database}, encryptor, *dryRun); err != nil {
			slog.Error("settings migration failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if err := ValidateMigration(ctx, database); err != nil {
		slog.Warn("validation failed", slog.Any("error", err))
	}
	slog.Info("migration completed successfully")
}

// migrateTokens encrypts every plaintext token row, one transaction per row.
func migrateTokens(ctx context.Context, database *sql.DB, encryptor crypto.Encryptor, dryRun bool, providerFilter string) error {
	query := `SELECT provider, COALESCE(access_token, ''), COALESCE(refresh_token, '')
		FROM oauth_tokens WHERE COALESCE(encryption_version, 0) = 0`
	var args []any
	if providerFilter != "" {
		query += " AND provider = $1"
		args = append(args, providerFilter)
	}
	query += " ORDER BY provider"

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query plaintext tokens: %w", err)
	}
	var tokens []TokenRow
	for rows.Next() {
		var tr TokenRow
		if err := rows.Scan(&tr.Provider, &tr.AccessToken, &tr.RefreshToken); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, tr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating token rows: %w", err)
	}

	if len(tokens) == 0 {
		slog.Info("no plaintext tokens found to migrate")
		return nil
	}
	slog.Info("found plaintext tokens to migrate", slog.Int("count", len(tokens)), slog.Bool("dry_run", dryRun))

	errorCount := 0
	for i, tr := range tokens {
		logger := slog.With(slog.String("provider", tr.Provider), slog.Int("index", i+1), slog.Int("total", len(tokens)))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			continue
		}
		if err := migrateToken(ctx, database, encryptor, tr); err != nil {
			logger.Error("failed to migrate token", slog.Any("error", err))
			errorCount++
			continue
		}
		logger.Info("migrated token")
	}
	if errorCount > 0 {
		return fmt.Errorf("token migration completed with %d errors", errorCount)
	}
	return nil
}

func migrateToken(ctx context.Context, database *sql.DB, encryptor crypto.Encryptor, tr TokenRow) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	access, err := crypto.EncryptString(encryptor, tr.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := crypto.EncryptString(encryptor, tr.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE oauth_tokens
		SET access_token = $1, refresh_token = $2, encryption_version = 1,
		    encryption_key_id = 'default', updated_at = NOW()
		WHERE provider = $3 AND COALESCE(encryption_version, 0) = 0`,
		access, refresh, tr.Provider)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (token may have been modified concurrently)", n)
	}
	return tx.Commit()
}

// sealSettings encrypts settings values that do not already decrypt under
// encryptor. Values sealed with a different key are indistinguishable from
// plaintext and get sealed twice, so run this with the key the server uses.
func sealSettings(ctx context.Context, store kv.Store, encryptor crypto.Encryptor, dryRun bool) error {
	raw, err := store.List(ctx, settingsPrefix)
	if err != nil {
		return fmt.Errorf("list settings: %w", err)
	}
	keys := kv.Keys(raw)
	sealed := 0
	for _, k := range keys {
		v := raw[k]
		if v == "" {
			continue
		}
		if _, err := crypto.DecryptString(encryptor, v); err == nil {
			continue
		}
		if dryRun {
			slog.Info("would seal setting (dry-run)", slog.String("key", k))
			sealed++
			continue
		}
		if err := (&kv.Sealed{Inner: store, Enc: encryptor}).Set(ctx, k, v); err != nil {
			return fmt.Errorf("seal %s: %w", k, err)
		}
		slog.Info("sealed setting", slog.String("key", k))
		sealed++
	}
	slog.Info("settings summary", slog.Int("checked", len(keys)), slog.Int("sealed", sealed), slog.Bool("dry_run", dryRun))
	return nil
}

// ValidateMigration logs how many token rows sit at each encryption version.
func ValidateMigration(ctx context.Context, database *sql.DB) error {
	rows, err := database.QueryContext(ctx, `SELECT COALESCE(encryption_version, 0), COUNT(*)
		FROM oauth_tokens GROUP BY 1 ORDER BY 1`)
	if err != nil {
		return fmt.Errorf("query validation: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return fmt.Errorf("scan validation row: %w", err)
		}
		desc := "plaintext"
		switch version {
		case 0:
		case 1:
			desc = "encrypted (AES-256-GCM)"
		default:
			desc = fmt.Sprintf("unknown version %d", version)
		}
		slog.Info("token encryption status", slog.Int("encryption_version", version), slog.String("description", desc), slog.Int("count", count))
		total += count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("validation rows iteration: %w", err)
	}
	slog.Info("total tokens", slog.Int("count", total))
	return nil
}
