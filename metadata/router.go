// Package metadata routes video lookups to the platform clients and converts
// their answers into broadcast metadata a session can anchor against.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robostem/matchjump/backend/stream"
	"github.com/robostem/matchjump/backend/streamsync"
	"github.com/robostem/matchjump/backend/telemetry"
	"github.com/robostem/matchjump/backend/twitchapi"
	"github.com/robostem/matchjump/backend/vimeoapi"
	"github.com/robostem/matchjump/backend/youtubeapi"
)

// ErrPlatformDisabled is returned for platforms without configured credentials.
var ErrPlatformDisabled = fmt.Errorf("platform not configured: %w", streamsync.ErrUnavailable)

// YouTube reads broadcast timing for a YouTube video; *youtubeapi.Client
// satisfies it.
type YouTube interface {
	LiveDetails(ctx context.Context, videoID string) (youtubeapi.LiveDetails, error)
}

// Vimeo fetches video metadata; *vimeoapi.Client satisfies it.
type Vimeo interface {
	GetVideo(ctx context.Context, id string) (vimeoapi.Video, error)
}

// Twitch fetches a Helix video; *twitchapi.HelixClient satisfies it.
type Twitch interface {
	GetVideo(ctx context.Context, id string) (twitchapi.Video, error)
}

// Router implements streamsync.MetadataSource. Nil platform clients disable
// that platform.
type Router struct {
	YouTube YouTube
	Vimeo   Vimeo
	Twitch  Twitch
	Logger  *slog.Logger
}

var _ streamsync.MetadataSource = (*Router)(nil)

func (r *Router) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Lookup fetches broadcast metadata for one video. Errors wrap
// streamsync.ErrUnavailable.
func (r *Router) Lookup(ctx context.Context, p stream.Platform, videoID string) (md streamsync.Metadata, err error) {
	ctx, span := telemetry.StartMetadataSpan(ctx, string(p), videoID)
	defer func() { telemetry.EndSpan(span, err) }()

	var fetch func(context.Context, string) (streamsync.Metadata, error)
	switch p {
	case stream.YouTube:
		fetch = r.youtube
	case stream.Vimeo:
		fetch = r.vimeo
	case stream.Twitch:
		fetch = r.twitch
	default:
		return streamsync.Metadata{}, fmt.Errorf("platform %q: %w", p, stream.ErrUnrecognizedURL)
	}
	telemetry.TimeFunc(telemetry.MetadataObserver(string(p)), func() {
		md, err = fetch(ctx, videoID)
	})
	if err != nil {
		r.log().Debug("metadata lookup failed", slog.String("platform", string(p)), slog.String("video_id", videoID), slog.Any("err", err))
		if !errors.Is(err, streamsync.ErrUnavailable) {
			err = fmt.Errorf("%s %s: %w: %w", p, videoID, streamsync.ErrUnavailable, err)
		}
	}
	return md, err
}

func (r *Router) youtube(ctx context.Context, id string) (streamsync.Metadata, error) {
	if r.YouTube == nil {
		return streamsync.Metadata{}, ErrPlatformDisabled
	}
	d, err := r.YouTube.LiveDetails(ctx, id)
	if err != nil {
		return streamsync.Metadata{}, err
	}
	md := streamsync.Metadata{Name: d.Title}
	switch {
	case d.ActualStart != nil:
		md.Status = streamsync.StatusStarted
		md.ActualStart = d.ActualStart
	case d.ScheduledStart != nil:
		md.Status = streamsync.StatusScheduled
		md.ScheduledStart = d.ScheduledStart
	default:
		// Plain uploads carry no broadcast timing.
		md.Status = streamsync.StatusUnavailable
	}
	return md, nil
}

func (r *Router) vimeo(ctx context.Context, id string) (streamsync.Metadata, error) {
	if r.Vimeo == nil {
		return streamsync.Metadata{}, ErrPlatformDisabled
	}
	v, err := r.Vimeo.GetVideo(ctx, id)
	if err != nil {
		return streamsync.Metadata{}, err
	}
	if v.Created.IsZero() {
		return streamsync.Metadata{Name: v.Name, Status: streamsync.StatusUnavailable}, nil
	}
	start := v.Start
	return streamsync.Metadata{Name: v.Name, Status: streamsync.StatusStarted, ActualStart: &start}, nil
}

func (r *Router) twitch(ctx context.Context, id string) (streamsync.Metadata, error) {
	if r.Twitch == nil {
		return streamsync.Metadata{}, ErrPlatformDisabled
	}
	v, err := r.Twitch.GetVideo(ctx, id)
	if err != nil {
		return streamsync.Metadata{}, err
	}
	// Only archives start when the broadcast did; highlights and uploads do not.
	if v.Type != "archive" || v.CreatedAt.IsZero() {
		return streamsync.Metadata{Name: v.Title, Status: streamsync.StatusUnavailable}, nil
	}
	start := v.CreatedAt
	return streamsync.Metadata{Name: v.Title, Status: streamsync.StatusStarted, ActualStart: &start}, nil
}
