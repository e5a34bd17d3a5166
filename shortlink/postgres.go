package shortlink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Postgres stores routes in the short_links table.
type Postgres struct {
	DB *sql.DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, x execer, r Route) error {
	streams, err := json.Marshal(r.Streams)
	if err != nil {
		return fmt.Errorf("encode streams: %w", err)
	}
	_, err = x.ExecContext(ctx, `INSERT INTO short_links (code, label, sku, streams, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NOW(),NOW())
		ON CONFLICT (code) DO UPDATE SET label=EXCLUDED.label, sku=EXCLUDED.sku, streams=EXCLUDED.streams, updated_at=NOW()`,
		r.Path, r.Label, r.SKU, string(streams))
	return err
}

func scanRoute(sc interface{ Scan(...any) error }) (Route, error) {
	var r Route
	var streams []byte
	if err := sc.Scan(&r.Path, &r.Label, &r.SKU, &streams); err != nil {
		return Route{}, err
	}
	if len(streams) > 0 {
		if err := json.Unmarshal(streams, &r.Streams); err != nil {
			return Route{}, fmt.Errorf("decode streams for %s: %w", r.Path, err)
		}
	}
	return r, nil
}

// List returns every route ordered by path.
func (p *Postgres) List(ctx context.Context) ([]Route, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT code, label, sku, streams FROM short_links ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the route for path or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, path string) (Route, error) {
	r, err := scanRoute(p.DB.QueryRowContext(ctx, `SELECT code, label, sku, streams FROM short_links WHERE code=$1`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return Route{}, ErrNotFound
	}
	return r, err
}

// Save normalizes r and upserts it.
func (p *Postgres) Save(ctx context.Context, r Route) error {
	r, err := r.Normalize()
	if err != nil {
		return err
	}
	return upsert(ctx, p.DB, r)
}

// ReplaceAll swaps the table contents in one transaction.
func (p *Postgres) ReplaceAll(ctx context.Context, rs []Route) error {
	normalized := make([]Route, 0, len(rs))
	for _, r := range rs {
		n, err := r.Normalize()
		if err != nil {
			return err
		}
		normalized = append(normalized, n)
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM short_links`); err != nil {
		return fmt.Errorf("clear short links: %w", err)
	}
	for _, r := range normalized {
		if err := upsert(ctx, tx, r); err != nil {
			return fmt.Errorf("save %s: %w", r.Path, err)
		}
	}
	return tx.Commit()
}

// Delete removes the route for path or returns ErrNotFound.
func (p *Postgres) Delete(ctx context.Context, path string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM short_links WHERE code=$1`, path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
