// Package vimeoapi reads archived stream timing from the Vimeo API and
// expands Vimeo event pages into their per-day archives.
//
// Vimeo reports created_time as the moment an archive finished recording, so
// the broadcast start is derived as created_time minus duration.
package vimeoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"

	"github.com/robostem/matchjump/backend/stream"
	"github.com/robostem/matchjump/backend/streamsync"
)

const (
	defaultAPIBase  = "https://api.vimeo.com"
	defaultPageBase = "https://vimeo.com"
	acceptHeader    = "application/vnd.vimeo.*+json;version=3.4"
)

var (
	ErrVideoNotFound = errors.New("vimeo video not found")
	ErrNoCredentials = errors.New("vimeo credentials not configured")
)

// Video is the timing view of a Vimeo video.
type Video struct {
	Created  time.Time
	Start    time.Time
	ID       string
	Name     string
	Duration time.Duration
}

// Client talks to the Vimeo API and event pages.
type Client struct {
	// HTTPClient carries authentication for API calls.
	HTTPClient *http.Client
	// PageClient fetches public event pages; defaults to http.DefaultClient.
	PageClient *http.Client
	Token      string
	APIBase    string
	PageBase   string
	// MetadataConcurrency bounds parallel lookups during event discovery.
	MetadataConcurrency int
}

// NewClient returns a client using a personal access token when one is set,
// otherwise an app token obtained with client credentials. It returns nil when
// neither is configured.
func NewClient(ctx context.Context, token, clientID, clientSecret string) *Client {
	switch {
	case token != "":
		return &Client{Token: token}
	case clientID != "" && clientSecret != "":
		cc := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     defaultAPIBase + "/oauth/authorize/client",
			Scopes:       []string{"public"},
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		return &Client{HTTPClient: cc.Client(ctx)}
	}
	return nil
}

func (c *Client) api() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) page() *http.Client {
	if c.PageClient != nil {
		return c.PageClient
	}
	return http.DefaultClient
}

func (c *Client) apiBase() string {
	if c.APIBase != "" {
		return strings.TrimRight(c.APIBase, "/")
	}
	return defaultAPIBase
}

func (c *Client) pageBase() string {
	if c.PageBase != "" {
		return strings.TrimRight(c.PageBase, "/")
	}
	return defaultPageBase
}

// GetVideo fetches one video and derives its broadcast start.
func (c *Client) GetVideo(ctx context.Context, id string) (Video, error) {
	if id == "" {
		return Video{}, fmt.Errorf("video id empty")
	}
	if c == nil {
		return Video{}, ErrNoCredentials
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase()+"/videos/"+id, nil)
	if err != nil {
		return Video{}, err
	}
	req.Header.Set("Accept", acceptHeader)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.api().Do(req)
	if err != nil {
		return Video{}, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return Video{}, ErrVideoNotFound
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Video{}, fmt.Errorf("vimeo videos/%s: %s: %s", id, resp.Status, strings.TrimSpace(string(b)))
	}
	var body struct {
		Name        string    `json:"name"`
		CreatedTime time.Time `json:"created_time"`
		Duration    int       `json:"duration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Video{}, fmt.Errorf("decode vimeo video: %w", err)
	}
	d := time.Duration(body.Duration) * time.Second
	return Video{
		ID:       id,
		Name:     body.Name,
		Created:  body.CreatedTime.UTC(),
		Duration: d,
		Start:    body.CreatedTime.Add(-d).UTC(),
	}, nil
}

var (
	embedRe = regexp.MustCompile(`player\.vimeo\.com/video/(\d+)`)
	dataRe  = regexp.MustCompile(`data-video-id="(\d+)"`)
	linkRe  = regexp.MustCompile(`vimeo\.com/(\d{8,})`)
)

// ExtractVideoIDs returns the distinct video ids referenced by an event page,
// in order of first appearance. The event's own id is excluded.
func ExtractVideoIDs(html, eventID string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == eventID {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, re := range []*regexp.Regexp{embedRe, dataRe, linkRe} {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			add(m[1])
		}
	}
	return out
}

// EventVideoIDs fetches the public event page and extracts its video ids.
func (c *Client) EventVideoIDs(ctx context.Context, eventID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageBase()+"/event/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.page().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch vimeo event page: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch vimeo event page: %s", resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	return ExtractVideoIDs(string(b), eventID), nil
}

// DiscoverEvent resolves an event page into at most limit archives ordered by
// start, earliest first. Videos whose metadata cannot be read are skipped.
func (c *Client) DiscoverEvent(ctx context.Context, eventID string, limit int) ([]streamsync.Discovered, error) {
	if c == nil {
		return nil, ErrNoCredentials
	}
	ids, err := c.EventVideoIDs(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	videos := make([]*Video, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	n := c.MetadataConcurrency
	if n <= 0 {
		n = 4
	}
	g.SetLimit(n)
	for i, id := range ids {
		g.Go(func() error {
			v, err := c.GetVideo(gctx, id)
			if err != nil {
				slog.Warn("vimeo event video skipped", slog.String("event_id", eventID), slog.String("video_id", id), slog.Any("err", err))
				return nil
			}
			videos[i] = &v
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ok []Video
	for _, v := range videos {
		if v != nil {
			ok = append(ok, *v)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool { return ok[i].Start.Before(ok[j].Start) })
	if limit > 0 && len(ok) > limit {
		ok = ok[:limit]
	}
	out := make([]streamsync.Discovered, 0, len(ok))
	for _, v := range ok {
		out = append(out, streamsync.Discovered{
			Start:    v.Start,
			URL:      stream.CanonicalURL(stream.Vimeo, v.ID),
			VideoID:  v.ID,
			Name:     v.Name,
			Platform: stream.Vimeo,
		})
	}
	return out, nil
}
