// Package oauth schedules background refreshes for tokens persisted in the
// oauth_tokens table. Checks are jittered and a token is refreshed once its
// remaining lifetime falls inside the configured window.
package oauth

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/robostem/matchjump/backend/db"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// RefreshOnce refreshes the provider's token when it expires within window.
// It reports whether a refresh was persisted. Rows without a refresh token
// are left alone.
func RefreshOnce(ctx context.Context, dbx *sql.DB, provider string, window time.Duration, fn RefreshFunc) (bool, error) {
	at, rt, exp, scope, err := db.GetOAuthToken(ctx, dbx, provider)
	if err != nil {
		return false, fmt.Errorf("load %s token: %w", provider, err)
	}
	if at == "" && rt == "" {
		return false, nil
	}
	if rt == "" || time.Until(exp) > window {
		return false, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
	cancel()
	if err != nil {
		return false, fmt.Errorf("refresh %s token: %w", provider, err)
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := db.UpsertOAuthToken(ctx, dbx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		return false, fmt.Errorf("persist %s token: %w", provider, err)
	}
	return true, nil
}

// StartRefresher launches a goroutine that periodically checks an oauth token row and refreshes it.
// provider: key in oauth_tokens table.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, dbx *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	logger := slog.Default().With(slog.String("component", "oauth_refresher"), slog.String("provider", provider))
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// per-iteration jitter of ±20% of interval
			jitterRange := int64(interval/5) + 1
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			refreshed, err := RefreshOnce(ctx, dbx, provider, window, fn)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("token refresh failed", slog.Any("err", err))
				continue
			}
			if refreshed {
				logger.Info("token refreshed")
			}
		}
	}()
}
