// Package twitchapi reads archived broadcast timing from the Twitch Helix API
// using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultHelixBase = "https://api.twitch.tv/helix"

var ErrVideoNotFound = errors.New("twitch video not found")

// Video is the timing view of a Twitch VOD. For archives CreatedAt is the
// moment the broadcast went live.
type Video struct {
	CreatedAt time.Time
	ID        string
	Title     string
	Type      string
	Duration  time.Duration
}

// HelixClient provides the video lookup needed to anchor Twitch VODs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	BaseURL        string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return defaultHelixBase
}

// GetVideo fetches one VOD by id. A 401 drops the cached app token and the
// request is retried once.
func (hc *HelixClient) GetVideo(ctx context.Context, id string) (Video, error) {
	if id == "" {
		return Video{}, fmt.Errorf("video id empty")
	}
	for attempt := 0; ; attempt++ {
		v, status, err := hc.getVideo(ctx, id)
		if status == http.StatusUnauthorized && attempt == 0 {
			hc.AppTokenSource.Invalidate()
			continue
		}
		return v, err
	}
}

func (hc *HelixClient) getVideo(ctx context.Context, id string) (Video, int, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return Video{}, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/videos", nil)
	if err != nil {
		return Video{}, 0, err
	}
	q := req.URL.Query()
	q.Set("id", id)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return Video{}, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Video{}, resp.StatusCode, ErrVideoNotFound
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Video{}, resp.StatusCode, fmt.Errorf("helix videos: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var body struct {
		Data []struct {
			ID        string    `json:"id"`
			Title     string    `json:"title"`
			Type      string    `json:"type"`
			Duration  string    `json:"duration"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Video{}, resp.StatusCode, err
	}
	if len(body.Data) == 0 {
		return Video{}, resp.StatusCode, ErrVideoNotFound
	}
	d := body.Data[0]
	// Helix durations ("3h8m33s") are valid Go durations.
	dur, err := time.ParseDuration(d.Duration)
	if err != nil {
		slog.Debug("unparseable twitch duration", slog.String("duration", d.Duration))
	}
	return Video{
		ID:        d.ID,
		Title:     d.Title,
		Type:      d.Type,
		CreatedAt: d.CreatedAt.UTC(),
		Duration:  dur,
	}, resp.StatusCode, nil
}
