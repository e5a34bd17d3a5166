// Package resolve answers "which stream, what offset" for a match: it picks
// the stream slot covering a match's day, converts between wall-clock instants
// and playback offsets using the slot's sync anchor, and flags streams whose
// broadcast date contradicts the day they are assigned to.
package resolve

import (
	"time"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/stream"
)

// DefaultMaxMismatchDays bounds how far apart assigned and actual days may be
// before a mismatch is treated as an unrelated video and not reported.
const DefaultMaxMismatchDays = 14

// Mismatch reports a stream whose broadcast date falls on a different event
// day than the slot it sits in. Days are 1-based for display.
type Mismatch struct {
	SlotID             string `json:"slotId"`
	StreamDate         string `json:"streamDate"`
	CorrectDayStreamID string `json:"correctDayStreamId,omitempty"`
	ExpectedDay        int    `json:"expectedDay"`
	ActualDay          int    `json:"actualDay"`
	CanSwap            bool   `json:"canSwap"`
}

// Check compares the calendar day of slot's sync anchor with its assigned day.
// It returns nil when the slot is a backup, is not synced, sits on the right
// day, or is maxDays or more away from it. maxDays <= 0 uses
// DefaultMaxMismatchDays.
func Check(slot stream.Slot, reg stream.Registry, ev *event.Event, maxDays int) *Mismatch {
	if ev == nil || slot.DayIndex == nil || slot.SyncAnchor == nil {
		return nil
	}
	if maxDays <= 0 {
		maxDays = DefaultMaxMismatchDays
	}
	assigned := *slot.DayIndex
	actual := event.DayIndex(*slot.SyncAnchor, ev.Start)
	if actual == assigned || abs(actual-assigned) >= maxDays {
		return nil
	}
	m := &Mismatch{
		SlotID:      slot.ID,
		StreamDate:  slot.SyncAnchor.In(ev.Start.Location()).Format("Jan 2, 2006"),
		ExpectedDay: assigned + 1,
		ActualDay:   actual + 1,
	}
	if other, ok := swapTarget(slot, reg, actual); ok {
		m.CanSwap = true
		m.CorrectDayStreamID = other.ID
	}
	return m
}

// CheckAll runs Check over every slot in registry order.
func CheckAll(reg stream.Registry, ev *event.Event, maxDays int) []Mismatch {
	var out []Mismatch
	for _, s := range reg.Slots() {
		if m := Check(s, reg, ev, maxDays); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// swapTarget finds the slot bound to day, preferring the same division as
// slot and falling back to a cross-division slot.
func swapTarget(slot stream.Slot, reg stream.Registry, day int) (stream.Slot, bool) {
	var fallback *stream.Slot
	for _, s := range reg.Slots() {
		if s.ID == slot.ID || !s.OnDay(day) {
			continue
		}
		if sameDivision(s, slot) {
			return s, true
		}
		if s.DivisionID == nil && fallback == nil {
			c := s
			fallback = &c
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return stream.Slot{}, false
}

func sameDivision(a, b stream.Slot) bool {
	if a.DivisionID == nil || b.DivisionID == nil {
		return a.DivisionID == nil && b.DivisionID == nil
	}
	return *a.DivisionID == *b.DivisionID
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func dayOf(t time.Time, ev *event.Event) int { return event.DayIndex(t, ev.Start) }
