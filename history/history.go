// Package history remembers recently viewed events together with the streams
// the user had set up, so an event can be reopened with the same slots. Each
// entry can report streams whose anchor falls outside the event's dates.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/stream"
)

var ErrNotFound = errors.New("history entry not found")

// Stream is a saved slot.
type Stream struct {
	SyncAnchor *time.Time      `json:"syncAnchor,omitempty"`
	DayIndex   *int            `json:"dayIndex,omitempty"`
	DivisionID *int            `json:"divisionId,omitempty"`
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	URL        string          `json:"url"`
	Platform   stream.Platform `json:"platform,omitempty"`
}

// Entry is one viewed event.
type Entry struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	ViewedAt time.Time `json:"viewedAt"`
	SKU      string    `json:"sku"`
	Name     string    `json:"name"`
	Streams  []Stream  `json:"streams"`
	EventID  int       `json:"eventId"`
}

// FromSession snapshots an event and its registry. Slots without a URL are
// skipped.
func FromSession(ev *event.Event, reg stream.Registry, now time.Time) Entry {
	e := Entry{EventID: ev.ID, SKU: ev.SKU, Name: ev.Name, Start: ev.Start, End: ev.End, ViewedAt: now.UTC()}
	for _, s := range reg.Slots() {
		if s.URL == "" {
			continue
		}
		e.Streams = append(e.Streams, Stream{
			ID:         s.ID,
			Label:      s.Label,
			URL:        s.URL,
			Platform:   s.Platform,
			DayIndex:   s.DayIndex,
			DivisionID: s.DivisionID,
			SyncAnchor: s.SyncAnchor,
		})
	}
	return e
}

// Warning flags a saved stream whose anchor date is outside the event.
type Warning struct {
	StreamDate  string `json:"streamDate"`
	StreamIndex int    `json:"streamIndex"`
	// MatchedDay is the 0-based event day the anchor falls on; negative or
	// past the last day when outside the event.
	MatchedDay  int  `json:"matchedDay"`
	BeforeEvent bool `json:"beforeEvent"`
	AfterEvent  bool `json:"afterEvent"`
}

// Warnings lists streams anchored before the event's first day or after its
// last. Dates are compared in the event's own location.
func (e Entry) Warnings() []Warning {
	loc := e.Start.Location()
	first := civil(e.Start, loc)
	last := civil(e.End, loc)
	var out []Warning
	for i, s := range e.Streams {
		if s.SyncAnchor == nil {
			continue
		}
		d := civil(*s.SyncAnchor, loc)
		before, after := d.Before(first), d.After(last)
		if !before && !after {
			continue
		}
		out = append(out, Warning{
			StreamIndex: i,
			StreamDate:  d.Format("2006-01-02"),
			MatchedDay:  event.DayIndex(s.SyncAnchor.In(loc), e.Start),
			BeforeEvent: before,
			AfterEvent:  after,
		})
	}
	return out
}

func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Store persists entries keyed by event id; recording an event again
// replaces its entry and refreshes ViewedAt.
type Store interface {
	Record(ctx context.Context, e Entry) error
	// List returns entries most recently viewed first.
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, eventID int) (Entry, error)
	Delete(ctx context.Context, eventID int) error
	// Prune removes entries viewed before cutoff (zero disables) and all but
	// the newest keep entries (<= 0 disables). It returns the number removed.
	Prune(ctx context.Context, cutoff time.Time, keep int) (int, error)
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[int]Entry
}

func NewMemory() *Memory { return &Memory{entries: make(map[int]Entry)} }

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.EventID] = e
	return nil
}

func (m *Memory) sorted() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ViewedAt.Equal(out[j].ViewedAt) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].ViewedAt.After(out[j].ViewedAt)
	})
	return out
}

func (m *Memory) List(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *Memory) Get(_ context.Context, eventID int) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[eventID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) Delete(_ context.Context, eventID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[eventID]; !ok {
		return ErrNotFound
	}
	delete(m.entries, eventID)
	return nil
}

func (m *Memory) Prune(_ context.Context, cutoff time.Time, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for i, e := range m.sorted() {
		if (!cutoff.IsZero() && e.ViewedAt.Before(cutoff)) || (keep > 0 && i >= keep) {
			delete(m.entries, e.EventID)
			removed++
		}
	}
	return removed, nil
}
