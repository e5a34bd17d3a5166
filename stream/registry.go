package stream

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robostem/matchjump/backend/event"
)

// ErrSlotNotFound is returned when an operation names an unknown slot id.
var ErrSlotNotFound = errors.New("stream slot not found")

// BackupLabel labels slots added by AddBackup.
const BackupLabel = "Backup Stream"

// Options tune how ForEvent lays out slots.
type Options struct {
	// SingleDayLabel overrides the label of a one-day event's only slot.
	SingleDayLabel string
	// PerDivision creates one slot per (division, day) for multi-division events.
	PerDivision bool
}

// Registry is an ordered, never-empty list of stream slots for one event.
type Registry struct {
	slots   []Slot
	eventID int
}

// New builds a registry from existing slots, e.g. when restoring a session.
// An empty slot list gets a single backup slot.
func New(eventID int, slots ...Slot) Registry {
	r := Registry{eventID: eventID, slots: append([]Slot(nil), slots...)}
	if len(r.slots) == 0 {
		r.slots = []Slot{newBackup()}
	}
	return r
}

// ForEvent seeds a registry with one slot per event day. If prev already holds
// slots for the same event it is returned unchanged so that URLs entered by
// the user survive a reload of the event.
func ForEvent(prev Registry, ev *event.Event, opts Options) Registry {
	if len(prev.slots) > 0 && prev.eventID == ev.ID {
		return prev
	}
	days := event.Partitioner{SingleDayLabel: opts.SingleDayLabel}.Partition(ev.Start, ev.End)
	r := Registry{eventID: ev.ID}
	if opts.PerDivision && ev.MultiDivision() {
		for _, div := range ev.Divisions {
			for _, d := range days {
				r.slots = append(r.slots, Slot{
					ID:         fmt.Sprintf("stream-div%d-day-%d", div.ID, d.Index),
					DivisionID: intPtr(div.ID),
					DayIndex:   intPtr(d.Index),
					Label:      div.Name + " · " + d.Label,
				})
			}
		}
		return r
	}
	for _, d := range days {
		r.slots = append(r.slots, Slot{
			ID:       fmt.Sprintf("stream-day-%d", d.Index),
			DayIndex: intPtr(d.Index),
			Label:    d.Label,
		})
	}
	return r
}

// EventID returns the id of the event the registry was seeded for.
func (r Registry) EventID() int { return r.eventID }

// Len returns the number of slots.
func (r Registry) Len() int { return len(r.slots) }

// Slots returns a copy of the slots in registry order.
func (r Registry) Slots() []Slot { return append([]Slot(nil), r.slots...) }

// Slot looks up a slot by id.
func (r Registry) Slot(id string) (Slot, bool) {
	if i := r.index(id); i >= 0 {
		return r.slots[i], true
	}
	return Slot{}, false
}

// FindKey returns the first slot carrying the video identified by key.
func (r Registry) FindKey(key string) (Slot, bool) {
	if key == "" {
		return Slot{}, false
	}
	for _, s := range r.slots {
		if s.Key() == key {
			return s, true
		}
	}
	return Slot{}, false
}

// DayBound returns the day-bound slots ordered by day index, keeping registry
// order among slots that share a day.
func (r Registry) DayBound() []Slot {
	out := make([]Slot, 0, len(r.slots))
	for _, s := range r.slots {
		if !s.Backup() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].DayIndex < *out[j].DayIndex })
	return out
}

// HasDivisionSlots reports whether any slot is bound to a division.
func (r Registry) HasDivisionSlots() bool {
	for _, s := range r.slots {
		if s.DivisionID != nil {
			return true
		}
	}
	return false
}

// Signature identifies the set of parsed videos in the registry, independent
// of slot order.
func (r Registry) Signature() string {
	keys := make([]string, 0, len(r.slots))
	for _, s := range r.slots {
		if k := s.Key(); k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// AddBackup appends an unbound slot and returns it.
func (r Registry) AddBackup() (Registry, Slot) {
	s := newBackup()
	next := r.clone()
	next.slots = append(next.slots, s)
	return next, s
}

// Remove deletes a backup slot. Day-bound slots and the last remaining slot
// are never removed; the second return value reports whether anything changed.
func (r Registry) Remove(id string) (Registry, bool) {
	i := r.index(id)
	if i < 0 || len(r.slots) <= 1 || !r.slots[i].Backup() {
		return r, false
	}
	next := r.clone()
	next.slots = append(next.slots[:i], next.slots[i+1:]...)
	return next, true
}

// SetURL stores raw on the slot and resolves its platform identifier. Any
// previous sync anchor is dropped. When raw does not parse, the raw URL is
// still stored (platform and identifier cleared) and the parse error is
// returned alongside the updated registry.
func (r Registry) SetURL(id, raw string) (Registry, error) {
	i := r.index(id)
	if i < 0 {
		return r, fmt.Errorf("%s: %w", id, ErrSlotNotFound)
	}
	raw = strings.TrimSpace(raw)
	next := r.clone()
	s := &next.slots[i]
	s.URL = raw
	s.SyncAnchor = nil
	s.Sync = SyncNone
	s.Name = ""
	s.Platform, s.VideoID = PlatformNone, ""
	if raw == "" {
		return next, nil
	}
	p, vid, err := Parse(raw)
	if err != nil {
		return next, err
	}
	s.Platform, s.VideoID = p, vid
	return next, nil
}

// Swap exchanges the video (URL, platform, identifier, name) and sync state of
// two slots. Day binding, division and label stay where they are, so swapping
// twice restores the original assignment.
func (r Registry) Swap(a, b string) (Registry, error) {
	i, j := r.index(a), r.index(b)
	if i < 0 {
		return r, fmt.Errorf("%s: %w", a, ErrSlotNotFound)
	}
	if j < 0 {
		return r, fmt.Errorf("%s: %w", b, ErrSlotNotFound)
	}
	if i == j {
		return r, nil
	}
	next := r.clone()
	x, y := &next.slots[i], &next.slots[j]
	x.URL, y.URL = y.URL, x.URL
	x.Platform, y.Platform = y.Platform, x.Platform
	x.VideoID, y.VideoID = y.VideoID, x.VideoID
	x.Name, y.Name = y.Name, x.Name
	x.SyncAnchor, y.SyncAnchor = y.SyncAnchor, x.SyncAnchor
	x.Sync, y.Sync = y.Sync, x.Sync
	return next, nil
}

// SetSync records a sync outcome on a slot. anchor may be nil for outcomes
// that do not produce one (scheduled, unavailable). The anchor is kept at
// millisecond precision.
func (r Registry) SetSync(id string, anchor *time.Time, status SyncStatus) (Registry, error) {
	i := r.index(id)
	if i < 0 {
		return r, fmt.Errorf("%s: %w", id, ErrSlotNotFound)
	}
	next := r.clone()
	if anchor != nil {
		a := time.UnixMilli(anchor.UnixMilli()).UTC()
		anchor = &a
	}
	next.slots[i].SyncAnchor = anchor
	next.slots[i].Sync = status
	return next, nil
}

// Assignment is a fully resolved video placed onto a slot in one step, as
// produced by bulk discovery.
type Assignment struct {
	Anchor   *time.Time
	URL      string
	Platform Platform
	VideoID  string
	Name     string
}

// Assign replaces a slot's video with a, keeping its day binding and label.
func (r Registry) Assign(id string, a Assignment) (Registry, error) {
	i := r.index(id)
	if i < 0 {
		return r, fmt.Errorf("%s: %w", id, ErrSlotNotFound)
	}
	next := r.clone()
	s := &next.slots[i]
	s.URL, s.Platform, s.VideoID, s.Name = a.URL, a.Platform, a.VideoID, a.Name
	s.SyncAnchor, s.Sync = nil, SyncNone
	if a.Anchor != nil {
		at := time.UnixMilli(a.Anchor.UnixMilli()).UTC()
		s.SyncAnchor, s.Sync = &at, SyncAuto
	}
	return next, nil
}

// SetName stores the platform title of a slot's video.
func (r Registry) SetName(id, name string) Registry {
	i := r.index(id)
	if i < 0 {
		return r
	}
	next := r.clone()
	next.slots[i].Name = name
	return next
}

func (r Registry) index(id string) int {
	for i, s := range r.slots {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (r Registry) clone() Registry {
	return Registry{eventID: r.eventID, slots: append([]Slot(nil), r.slots...)}
}

func newBackup() Slot {
	return Slot{ID: "stream-backup-" + uuid.NewString(), Label: BackupLabel}
}
