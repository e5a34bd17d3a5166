package resolve

import (
	"errors"
	"math"
	"time"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/stream"
)

var (
	// ErrNotSynced is returned when the slot has no sync anchor.
	ErrNotSynced = errors.New("stream is not synced")
	// ErrNotPlayed is returned for a match without a start instant.
	ErrNotPlayed = errors.New("match has not been played")
	// ErrBeforeStreamStart is returned when a match started before the stream
	// did. The computed offset is returned alongside it and is never clamped.
	ErrBeforeStreamStart = errors.New("match happened before stream started")
	// ErrNoStreamForDay is returned when no slot covers the match's day.
	ErrNoStreamForDay = errors.New("no stream for match day")
)

// ToPlaybackOffset converts the match start into seconds from the stream's
// offset zero. A negative offset is returned together with
// ErrBeforeStreamStart; callers must not seek in that case.
func ToPlaybackOffset(m event.Match, slot stream.Slot) (float64, error) {
	if m.Start == nil {
		return 0, ErrNotPlayed
	}
	if slot.SyncAnchor == nil {
		return 0, ErrNotSynced
	}
	ms := m.Start.UnixMilli() - slot.SyncAnchor.UnixMilli()
	off := float64(ms) / 1000
	if ms < 0 {
		return off, ErrBeforeStreamStart
	}
	return off, nil
}

// FromPlaybackOffset is the inverse of ToPlaybackOffset: the wall-clock
// instant shown at offsetSeconds into the stream, to the millisecond.
func FromPlaybackOffset(offsetSeconds float64, slot stream.Slot) (time.Time, error) {
	if slot.SyncAnchor == nil {
		return time.Time{}, ErrNotSynced
	}
	return slot.SyncAnchor.Add(millis(offsetSeconds)), nil
}

// AnchorAt derives a sync anchor from an instant observed at offsetSeconds of
// playback: the wall-clock instant at offset -offsetSeconds from instant, so
// that ToPlaybackOffset maps instant back to offsetSeconds.
func AnchorAt(instant time.Time, offsetSeconds float64) time.Time {
	at := time.UnixMilli(instant.UnixMilli())
	anchor, _ := FromPlaybackOffset(-offsetSeconds, stream.Slot{SyncAnchor: &at})
	return anchor.UTC()
}

// Shift moves an anchor by deltaSeconds.
func Shift(anchor time.Time, deltaSeconds float64) time.Time {
	return anchor.Add(millis(deltaSeconds)).UTC()
}

// Locate resolves the slot for a match and its playback offset in one step.
// Mismatches are not consulted.
func Locate(m event.Match, reg stream.Registry, ev *event.Event) (stream.Slot, float64, error) {
	if !m.Played() {
		return stream.Slot{}, 0, ErrNotPlayed
	}
	s, ok := StreamFor(m, reg, ev)
	if !ok {
		return stream.Slot{}, 0, ErrNoStreamForDay
	}
	off, err := ToPlaybackOffset(m, s)
	return s, off, err
}

func millis(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds*1000)) * time.Millisecond
}
