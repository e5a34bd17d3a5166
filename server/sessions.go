package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/streamsync"
	"github.com/robostem/matchjump/backend/telemetry"
)

// sessionEntry is one live session plus the matches fetched for it, so that
// a manual sync can name a match by id.
type sessionEntry struct {
	sess     *streamsync.Session
	lastUsed time.Time

	mu      sync.Mutex
	matches map[int]event.Match
}

func (e *sessionEntry) rememberMatches(ms []event.Match) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range ms {
		e.matches[m.ID] = m
	}
}

func (e *sessionEntry) match(id int) (event.Match, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[id]
	return m, ok
}

// Sessions holds in-memory sessions and expires idle ones.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	idleTTL time.Duration
	now     func() time.Time
}

// NewSessions returns an empty manager; idleTTL <= 0 disables expiry.
func NewSessions(idleTTL time.Duration) *Sessions {
	return &Sessions{entries: make(map[string]*sessionEntry), idleTTL: idleTTL, now: time.Now}
}

// Add stores sess under a new id.
func (s *Sessions) Add(sess *streamsync.Session) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = &sessionEntry{sess: sess, lastUsed: s.now(), matches: make(map[int]event.Match)}
	n := len(s.entries)
	s.mu.Unlock()
	telemetry.SetActiveSessions(n)
	return id
}

func (s *Sessions) get(id string) (*sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if ok {
		e.lastUsed = s.now()
	}
	return e, ok
}

// Get returns the session and marks it used.
func (s *Sessions) Get(id string) (*streamsync.Session, bool) {
	e, ok := s.get(id)
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Delete drops a session; it reports whether one existed.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	n := len(s.entries)
	s.mu.Unlock()
	telemetry.SetActiveSessions(n)
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes sessions idle longer than the TTL and returns how many.
func (s *Sessions) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)
	s.mu.Lock()
	removed := 0
	for id, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	n := len(s.entries)
	s.mu.Unlock()
	telemetry.SetActiveSessions(n)
	return removed
}

// RunSweeper calls Sweep every interval until ctx ends.
func (s *Sessions) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Info("expired idle sessions", slog.String("component", "sessions"), slog.Int("count", n))
			}
		}
	}
}
