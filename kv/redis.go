package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis stores pairs as plain Redis strings under Namespace.
type Redis struct {
	Client    redis.UniversalClient
	Namespace string
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, namespace string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Redis{Client: rdb, Namespace: namespace}, nil
}

func (s *Redis) key(k string) string { return s.Namespace + k }

func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := s.Client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	return s.Client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, s.key(key)).Err()
}

// List walks matching keys with SCAN.
func (s *Redis) List(ctx context.Context, prefix string) (map[string]string, error) {
	out := make(map[string]string)
	pattern := s.key(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := s.Client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("kv scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			vals, err := s.Client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, err
			}
			for i, k := range keys {
				if v, ok := vals[i].(string); ok {
					out[strings.TrimPrefix(k, s.Namespace)] = v
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// Close releases the client.
func (s *Redis) Close() error { return s.Client.Close() }
