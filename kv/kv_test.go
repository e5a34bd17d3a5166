package kv

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/robostem/matchjump/backend/crypto"
	"github.com/robostem/matchjump/backend/testutil"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "cfg:MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
	for k, v := range map[string]string{
		"cfg:MISMATCH_MAX_DAYS": "7",
		"cfg:SINGLE_DAY_LABEL":  "Stream",
		"settings:youtube-key":  "AIza",
		"cfg_100%":              "literal",
	} {
		if err := s.Set(ctx, k, v); err != nil {
			t.Fatalf("Set(%s) error = %v", k, err)
		}
	}
	if err := s.Set(ctx, "cfg:MISMATCH_MAX_DAYS", "10"); err != nil {
		t.Fatalf("overwrite error = %v", err)
	}
	if v, err := s.Get(ctx, "cfg:MISMATCH_MAX_DAYS"); err != nil || v != "10" {
		t.Errorf("Get after overwrite = %q, %v", v, err)
	}

	got, err := s.List(ctx, "cfg:")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := map[string]string{"cfg:MISMATCH_MAX_DAYS": "10", "cfg:SINGLE_DAY_LABEL": "Stream"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	if err := s.Delete(ctx, "settings:youtube-key"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "settings:youtube-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryZeroValue(t *testing.T) {
	var m Memory
	if err := m.Set(context.Background(), "a", "b"); err != nil {
		t.Fatal(err)
	}
	if GetOr(context.Background(), &m, "a", "x") != "b" {
		t.Error("zero-value Memory lost value")
	}
}

func TestGetOr(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "empty", "")
	if got := GetOr(ctx, m, "missing", "def"); got != "def" {
		t.Errorf("missing = %q", got)
	}
	if got := GetOr(ctx, m, "empty", "def"); got != "def" {
		t.Errorf("empty = %q", got)
	}
}

func TestSealed(t *testing.T) {
	enc, err := crypto.NewAESEncryptor(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	if err != nil {
		t.Fatal(err)
	}
	inner := NewMemory()
	s := &Sealed{Inner: inner, Enc: enc}
	exerciseStore(t, s)

	ctx := context.Background()
	_ = s.Set(ctx, "settings:youtube-key", "AIzaSecret")
	raw, _ := inner.Get(ctx, "settings:youtube-key")
	if raw == "AIzaSecret" || raw == "" {
		t.Errorf("inner holds %q, want ciphertext", raw)
	}
	if v, _ := s.Get(ctx, "settings:youtube-key"); v != "AIzaSecret" {
		t.Errorf("Sealed.Get = %q", v)
	}
}

func TestPostgres(t *testing.T) {
	db := testutil.SetupTestDB(t)
	exerciseStore(t, &Postgres{DB: db})
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping Redis-backed test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 14})
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer rdb.Close()
	exerciseStore(t, &Redis{Client: rdb, Namespace: "matchjump:test:"})
}

func TestKeysSorted(t *testing.T) {
	got := Keys(map[string]string{"b": "", "a": "", "c": ""})
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}
