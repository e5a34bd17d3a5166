// Package stream holds the stream registry: the ordered set of video slots for
// an event, each bound to a calendar day (or left unbound as a backup), with the
// resolved platform identifier and sync anchor of the video it carries.
//
// Registry values are immutable. Every mutation returns a new Registry so
// callers can apply updates as old-state to new-state functions.
package stream

import "time"

// SyncStatus records how a slot's sync anchor was obtained, or why it is absent.
type SyncStatus string

const (
	SyncNone        SyncStatus = ""
	SyncAuto        SyncStatus = "auto"
	SyncManual      SyncStatus = "manual"
	SyncScheduled   SyncStatus = "scheduled"
	SyncUnavailable SyncStatus = "unavailable"
)

// State is the lifecycle position of a slot.
type State string

const (
	StateEmpty          State = "EMPTY"
	StateURLSet         State = "URL_SET"
	StateAutoSynced     State = "AUTO_SYNCED"
	StateScheduledWait  State = "SCHEDULED_WAIT"
	StateSyncUnknown    State = "SYNC_UNKNOWN"
	StateManuallySynced State = "MANUALLY_SYNCED"
)

// Slot is one registry entry.
type Slot struct {
	SyncAnchor *time.Time `json:"syncAnchor"`
	DivisionID *int       `json:"divisionId,omitempty"`
	DayIndex   *int       `json:"dayIndex"`
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Platform   Platform   `json:"platform,omitempty"`
	VideoID    string     `json:"videoId,omitempty"`
	Label      string     `json:"label"`
	Name       string     `json:"name,omitempty"`
	Sync       SyncStatus `json:"sync,omitempty"`
}

// Backup reports whether the slot is not tied to a day.
func (s Slot) Backup() bool { return s.DayIndex == nil }

// Synced reports whether the slot has a sync anchor.
func (s Slot) Synced() bool { return s.SyncAnchor != nil }

// Key identifies the video the slot carries across platforms; empty when the
// URL has not been parsed.
func (s Slot) Key() string {
	if s.VideoID == "" {
		return ""
	}
	return string(s.Platform) + ":" + s.VideoID
}

// OnDay reports whether the slot is bound to day index i.
func (s Slot) OnDay(i int) bool { return s.DayIndex != nil && *s.DayIndex == i }

// InDivision reports whether the slot belongs to division id. Slots without a
// division match nothing here; callers treat them as the cross-division fallback.
func (s Slot) InDivision(id *int) bool {
	return s.DivisionID != nil && id != nil && *s.DivisionID == *id
}

// State derives the slot's lifecycle position.
func (s Slot) State() State {
	if s.URL == "" {
		return StateEmpty
	}
	switch s.Sync {
	case SyncAuto:
		return StateAutoSynced
	case SyncManual:
		return StateManuallySynced
	case SyncScheduled:
		return StateScheduledWait
	case SyncUnavailable:
		return StateSyncUnknown
	}
	return StateURLSet
}

func intPtr(v int) *int { return &v }
