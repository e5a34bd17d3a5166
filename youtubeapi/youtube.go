// Package youtubeapi reads broadcast timing for YouTube videos through the
// YouTube Data API. Lookups use an API key (optionally overridden per request
// by a user-supplied key) and fall back to an OAuth client when one has been
// connected, which also makes private and unlisted streams visible.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var (
	// ErrNoAPIKey means neither an API key nor a connected OAuth account is available.
	ErrNoAPIKey = errors.New("youtube api key not configured")
	// ErrVideoNotFound means the Data API returned no item for the id.
	ErrVideoNotFound = errors.New("youtube video not found")
)

// LiveDetails is the subset of a video resource needed to anchor a stream.
type LiveDetails struct {
	ActualStart    *time.Time
	ScheduledStart *time.Time
	Title          string
	// LiveBroadcastContent is "live", "upcoming" or "none".
	LiveBroadcastContent string
}

// Client performs video lookups. The zero value is usable once APIKey is set.
type Client struct {
	APIKey string
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// KeyOverride returns a per-request key, e.g. one saved in user settings.
	// An empty result falls back to APIKey.
	KeyOverride func(ctx context.Context) string
	// OAuth, when set and connected, is used if no key is available.
	OAuth *Service

	mu       sync.Mutex
	services map[string]*yt.Service
}

func (c *Client) key(ctx context.Context) string {
	if c.KeyOverride != nil {
		if k := strings.TrimSpace(c.KeyOverride(ctx)); k != "" {
			return k
		}
	}
	return c.APIKey
}

// maxCachedServices bounds the per-key client cache. Override keys are
// evicted together when it fills; the configured key stays.
const maxCachedServices = 8

// service returns a cached Data API client for the key.
func (c *Client) service(ctx context.Context, key string) (*yt.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if svc, ok := c.services[key]; ok {
		return svc, nil
	}
	opts := []option.ClientOption{option.WithAPIKey(key)}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	if c.services == nil {
		c.services = make(map[string]*yt.Service)
	}
	if len(c.services) >= maxCachedServices {
		for k := range c.services {
			if k != c.APIKey {
				delete(c.services, k)
			}
		}
	}
	c.services[key] = svc
	return svc, nil
}

func (c *Client) resolve(ctx context.Context) (*yt.Service, error) {
	if key := c.key(ctx); key != "" {
		return c.service(ctx, key)
	}
	if c.OAuth != nil {
		svc, err := c.OAuth.Client(ctx)
		if err == nil {
			return svc, nil
		}
	}
	return nil, ErrNoAPIKey
}

// LiveDetails fetches liveStreamingDetails and snippet for one video.
func (c *Client) LiveDetails(ctx context.Context, videoID string) (LiveDetails, error) {
	if videoID == "" {
		return LiveDetails{}, fmt.Errorf("video id empty")
	}
	svc, err := c.resolve(ctx)
	if err != nil {
		return LiveDetails{}, err
	}
	resp, err := svc.Videos.List([]string{"snippet", "liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 404 {
			return LiveDetails{}, ErrVideoNotFound
		}
		return LiveDetails{}, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return LiveDetails{}, ErrVideoNotFound
	}
	item := resp.Items[0]
	var out LiveDetails
	if item.Snippet != nil {
		out.Title = item.Snippet.Title
		out.LiveBroadcastContent = item.Snippet.LiveBroadcastContent
	}
	if d := item.LiveStreamingDetails; d != nil {
		out.ActualStart = parseTime(d.ActualStartTime)
		out.ScheduledStart = parseTime(d.ScheduledStartTime)
	}
	return out, nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
