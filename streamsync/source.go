// Package streamsync keeps the per-user stream state for one event: the stream
// registry, which videos have already been auto-detected, per-slot loading
// flags and messages, and the player handles the front end has registered.
// It derives sync anchors automatically from platform metadata or manually
// from an observed match, and drives seeks to a match's start.
//
// A Session is safe for concurrent use. Platform calls run outside the lock
// and their results are applied against the latest registry, so a result for
// a video that is no longer in its slot is dropped.
package streamsync

import (
	"context"
	"time"

	"github.com/robostem/matchjump/backend/stream"
)

// Status is the broadcast state a platform reports for a video.
type Status string

const (
	StatusUnavailable Status = "unavailable"
	StatusScheduled   Status = "scheduled"
	StatusStarted     Status = "started"
)

// Metadata is what a platform knows about a video's broadcast.
type Metadata struct {
	ActualStart    *time.Time
	ScheduledStart *time.Time
	Name           string
	Status         Status
}

// MetadataSource looks up broadcast metadata for one video.
type MetadataSource interface {
	Lookup(ctx context.Context, p stream.Platform, videoID string) (Metadata, error)
}

// Discovered is one archived stream found on a multi-stream event page.
type Discovered struct {
	Start    time.Time
	URL      string
	VideoID  string
	Name     string
	Platform stream.Platform
}

// Discoverer expands an event page into its archived streams, ordered by start.
// At most limit streams are returned.
type Discoverer interface {
	DiscoverEvent(ctx context.Context, eventID string, limit int) ([]Discovered, error)
}

// Player is the playback control surface for one slot, owned by the front end.
type Player interface {
	SeekTo(seconds float64) error
	Play() error
	Pause() error
	CurrentOffset() (float64, error)
}
