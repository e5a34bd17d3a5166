package history

import (
	"context"
	"log/slog"
	"time"
)

// RetentionPolicy bounds how much history is kept.
type RetentionPolicy struct {
	// MaxAge drops entries not viewed for this long (0 = disabled).
	MaxAge time.Duration
	// MaxEntries keeps only the N most recently viewed (0 = disabled).
	MaxEntries int
	Interval   time.Duration
	// Refresh, when set, adjusts the policy before every cycle, e.g. from
	// runtime config overrides.
	Refresh func(ctx context.Context, base RetentionPolicy) RetentionPolicy
}

// RunRetention performs a single cleanup cycle.
func RunRetention(ctx context.Context, s Store, p RetentionPolicy, now time.Time) (int, error) {
	var cutoff time.Time
	if p.MaxAge > 0 {
		cutoff = now.Add(-p.MaxAge)
	}
	return s.Prune(ctx, cutoff, p.MaxEntries)
}

// StartRetentionJob prunes history immediately and then every Interval until
// ctx is cancelled. It returns at once when no policy is configured and
// nothing can change it.
func StartRetentionJob(ctx context.Context, s Store, p RetentionPolicy) {
	logger := slog.Default().With(slog.String("component", "history_retention"))
	if p.MaxAge <= 0 && p.MaxEntries <= 0 && p.Refresh == nil {
		logger.Info("history retention disabled (no policy configured)")
		return
	}
	if p.Interval <= 0 {
		p.Interval = 6 * time.Hour
	}
	logger.Info("history retention starting",
		slog.Duration("max_age", p.MaxAge),
		slog.Int("max_entries", p.MaxEntries),
		slog.Duration("interval", p.Interval))

	run := func() {
		cur := p
		if p.Refresh != nil {
			cur = p.Refresh(ctx, p)
		}
		n, err := RunRetention(ctx, s, cur, time.Now())
		if err != nil {
			logger.Warn("history retention failed", slog.Any("err", err))
			return
		}
		if n > 0 {
			logger.Info("history pruned", slog.Int("removed", n))
		}
	}
	run()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("history retention stopped")
			return
		case <-ticker.C:
			run()
		}
	}
}
