package robotevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/telemetry"
)

// Match lists change while an event runs, so they expire sooner than
// events and teams.
const (
	defaultTTL = 10 * time.Minute
	matchTTL   = time.Minute
	keyPrefix  = "re:"
)

// Cached wraps a Provider with a Redis read-through cache. Cache failures
// fall through to the inner provider.
type Cached struct {
	inner Provider
	rdb   redis.UniversalClient
	ttl   time.Duration
	log   *slog.Logger
}

var _ Provider = (*Cached)(nil)

// NewCached returns a caching Provider. ttl <= 0 uses the default.
func NewCached(inner Provider, rdb redis.UniversalClient, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, log: slog.Default().With(slog.String("component", "robotevents_cache"))}
}

func cacheGet[T any](ctx context.Context, c *Cached, key string) (T, bool) {
	var zero T
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("cache get failed", slog.String("key", key), slog.Any("err", err))
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

func (c *Cached) set(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", slog.String("key", key), slog.Any("err", err))
	}
}

func (c *Cached) EventBySKU(ctx context.Context, sku string) (*event.Event, error) {
	key := keyPrefix + "event:" + sku
	if v, ok := cacheGet[event.Event](ctx, c, key); ok {
		telemetry.RecordProvider("robotevents", "hit")
		return &v, nil
	}
	ev, err := c.inner.EventBySKU(ctx, sku)
	if err != nil {
		telemetry.RecordProvider("robotevents", "error")
		return nil, err
	}
	telemetry.RecordProvider("robotevents", "miss")
	c.set(ctx, key, ev, c.ttl)
	return ev, nil
}

func (c *Cached) TeamByNumber(ctx context.Context, number string) (event.Team, error) {
	n, err := event.NormalizeTeamNumber(number)
	if err != nil {
		return event.Team{}, err
	}
	key := keyPrefix + "team:" + n
	if v, ok := cacheGet[event.Team](ctx, c, key); ok {
		telemetry.RecordProvider("robotevents", "hit")
		return v, nil
	}
	t, err := c.inner.TeamByNumber(ctx, n)
	if err != nil {
		telemetry.RecordProvider("robotevents", "error")
		return event.Team{}, err
	}
	telemetry.RecordProvider("robotevents", "miss")
	c.set(ctx, key, t, c.ttl)
	return t, nil
}

func (c *Cached) TeamMatches(ctx context.Context, ev *event.Event, teamID int) ([]event.Match, error) {
	key := fmt.Sprintf("%smatches:%d:%d", keyPrefix, ev.ID, teamID)
	if v, ok := cacheGet[[]event.Match](ctx, c, key); ok {
		telemetry.RecordProvider("robotevents", "hit")
		return v, nil
	}
	ms, err := c.inner.TeamMatches(ctx, ev, teamID)
	if err != nil {
		telemetry.RecordProvider("robotevents", "error")
		return nil, err
	}
	telemetry.RecordProvider("robotevents", "miss")
	c.set(ctx, key, ms, matchTTL)
	return ms, nil
}
