package streamsync

import (
	"context"
	"errors"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/resolve"
	"github.com/robostem/matchjump/backend/stream"
)

var (
	// ErrAlreadyAttempted is returned by AutoDetect when the slot's video has
	// already been looked up (or is being looked up) for the current set of
	// videos. No platform call is made.
	ErrAlreadyAttempted = errors.New("auto-detect already attempted for this video")
	// ErrNoVideo is returned when a slot has no parsed video identifier.
	ErrNoVideo = errors.New("stream has no recognized video")
	// ErrNoPlayer is returned by Seek when no player is registered for the slot.
	ErrNoPlayer = errors.New("no player registered for stream")
	// ErrUnavailable wraps platform and provider failures: missing or invalid
	// API key, network errors, unknown videos.
	ErrUnavailable = errors.New("external service unavailable")
	// ErrNothingDiscovered is returned when an event page holds no archived streams.
	ErrNothingDiscovered = errors.New("no archived videos found in this event")
)

// ErrorClass groups errors by how the caller should surface them.
type ErrorClass int

const (
	// ErrorClassUnknown is anything not recognized below.
	ErrorClassUnknown ErrorClass = iota
	// ErrorClassInput is malformed user input; nothing was changed.
	ErrorClassInput
	// ErrorClassNotFound is an unknown event, team, slot, or an empty result.
	ErrorClassNotFound
	// ErrorClassUnavailable is an external failure; the user can fall back to manual sync.
	ErrorClassUnavailable
	// ErrorClassPrecondition blocks an action (e.g. a seek) without being fatal.
	ErrorClassPrecondition
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassInput:
		return "input"
	case ErrorClassNotFound:
		return "not_found"
	case ErrorClassUnavailable:
		return "unavailable"
	case ErrorClassPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Classify maps an error chain onto an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	var vimeoEvent *stream.VimeoEventError
	switch {
	case errors.Is(err, event.ErrInvalidSKU),
		errors.Is(err, event.ErrEmptyTeamNumber),
		errors.Is(err, stream.ErrUnrecognizedURL),
		errors.As(err, &vimeoEvent):
		return ErrorClassInput
	case errors.Is(err, event.ErrNotFound),
		errors.Is(err, stream.ErrSlotNotFound),
		errors.Is(err, ErrNothingDiscovered):
		return ErrorClassNotFound
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorClassUnavailable
	case errors.Is(err, resolve.ErrBeforeStreamStart),
		errors.Is(err, resolve.ErrNotSynced),
		errors.Is(err, resolve.ErrNotPlayed),
		errors.Is(err, resolve.ErrNoStreamForDay),
		errors.Is(err, ErrNoPlayer),
		errors.Is(err, ErrNoVideo),
		errors.Is(err, ErrAlreadyAttempted):
		return ErrorClassPrecondition
	}
	return ErrorClassUnknown
}
