package resolve

import (
	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/stream"
)

// Reason explains why a match cannot be jumped to.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonNotPlayed   Reason = "not-yet-played"
	ReasonNoStream    Reason = "no-stream-for-day"
	ReasonNotSynced   Reason = "stream-not-synced"
	ReasonDayMismatch Reason = "date-mismatch"
)

// Reachability is the answer to "can we seek to this match right now".
type Reachability struct {
	Slot      *stream.Slot `json:"slot,omitempty"`
	Mismatch  *Mismatch    `json:"mismatch,omitempty"`
	Reason    Reason       `json:"reason,omitempty"`
	Reachable bool         `json:"reachable"`
}

// StreamFor picks the slot whose day covers the match start. With several
// divisions in play, a slot of the match's own division wins over a
// cross-division slot for the same day.
func StreamFor(m event.Match, reg stream.Registry, ev *event.Event) (stream.Slot, bool) {
	if !m.Played() || ev == nil {
		return stream.Slot{}, false
	}
	day := dayOf(*m.Start, ev)
	slots := reg.Slots()

	if ev.MultiDivision() && m.DivisionID != nil && reg.HasDivisionSlots() {
		for _, s := range slots {
			if s.OnDay(day) && s.InDivision(m.DivisionID) {
				return s, true
			}
		}
		for _, s := range slots {
			if s.OnDay(day) && s.DivisionID == nil {
				return s, true
			}
		}
		return stream.Slot{}, false
	}
	for _, s := range slots {
		if s.OnDay(day) {
			return s, true
		}
	}
	return stream.Slot{}, false
}

// Availability resolves the match's slot and reports whether a seek would
// land on it. An unresolved day mismatch on the slot makes the match
// unreachable here, though callers may still seek since mismatches are
// advisory.
func Availability(m event.Match, reg stream.Registry, ev *event.Event, maxDays int) Reachability {
	if !m.Played() {
		return Reachability{Reason: ReasonNotPlayed}
	}
	s, ok := StreamFor(m, reg, ev)
	if !ok {
		return Reachability{Reason: ReasonNoStream}
	}
	r := Reachability{Slot: &s}
	if !s.Synced() {
		r.Reason = ReasonNotSynced
		return r
	}
	if mm := Check(s, reg, ev, maxDays); mm != nil {
		r.Mismatch = mm
		r.Reason = ReasonDayMismatch
		return r
	}
	r.Reachable = true
	return r
}
