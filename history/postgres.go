package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Postgres stores entries in the event_history table.
type Postgres struct {
	DB *sql.DB
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	streams, err := json.Marshal(e.Streams)
	if err != nil {
		return fmt.Errorf("encode streams: %w", err)
	}
	if e.ViewedAt.IsZero() {
		e.ViewedAt = time.Now().UTC()
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO event_history (event_id, sku, name, start_date, end_date, streams, viewed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (event_id) DO UPDATE SET
			sku=EXCLUDED.sku, name=EXCLUDED.name, start_date=EXCLUDED.start_date, end_date=EXCLUDED.end_date,
			streams=EXCLUDED.streams, viewed_at=EXCLUDED.viewed_at`,
		e.EventID, e.SKU, e.Name, e.Start, e.End, string(streams), e.ViewedAt)
	return err
}

const selectEntry = `SELECT event_id, sku, name, start_date, end_date, streams, viewed_at FROM event_history`

func scanEntry(sc interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var streams []byte
	if err := sc.Scan(&e.EventID, &e.SKU, &e.Name, &e.Start, &e.End, &streams, &e.ViewedAt); err != nil {
		return Entry{}, err
	}
	if len(streams) > 0 {
		if err := json.Unmarshal(streams, &e.Streams); err != nil {
			return Entry{}, fmt.Errorf("decode streams for event %d: %w", e.EventID, err)
		}
	}
	return e, nil
}

func (p *Postgres) List(ctx context.Context) ([]Entry, error) {
	rows, err := p.DB.QueryContext(ctx, selectEntry+` ORDER BY viewed_at DESC, event_id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, eventID int) (Entry, error) {
	e, err := scanEntry(p.DB.QueryRowContext(ctx, selectEntry+` WHERE event_id=$1`, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (p *Postgres) Delete(ctx context.Context, eventID int) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM event_history WHERE event_id=$1`, eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Prune(ctx context.Context, cutoff time.Time, keep int) (int, error) {
	var removed int64
	if !cutoff.IsZero() {
		res, err := p.DB.ExecContext(ctx, `DELETE FROM event_history WHERE viewed_at < $1`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if keep > 0 {
		res, err := p.DB.ExecContext(ctx, `DELETE FROM event_history WHERE event_id NOT IN (
			SELECT event_id FROM event_history ORDER BY viewed_at DESC, event_id LIMIT $1)`, keep)
		if err != nil {
			return int(removed), fmt.Errorf("prune by count: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return int(removed), nil
}
