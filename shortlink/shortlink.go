// Package shortlink maps short paths such as /r/worlds-sci to an event and
// a fixed list of streams, and rebuilds the query string that restores such a
// session. Sync anchors are never stored in a link.
package shortlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/robostem/matchjump/backend/event"
)

var (
	ErrNotFound = errors.New("short link not found")
	ErrInvalid  = errors.New("invalid short link")
)

var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// StreamRef is one stream of a route. In JSON and YAML it may be written as a
// bare video id or as {videoId, isLive}.
type StreamRef struct {
	VideoID string `json:"videoId" yaml:"videoId"`
	Live    bool   `json:"isLive,omitempty" yaml:"isLive,omitempty"`
}

type streamRefObject struct {
	VideoID string `json:"videoId" yaml:"videoId"`
	ID      string `json:"id" yaml:"id"`
	Live    bool   `json:"isLive" yaml:"isLive"`
}

func (o streamRefObject) ref() StreamRef {
	id := o.VideoID
	if id == "" {
		id = o.ID
	}
	return StreamRef{VideoID: id, Live: o.Live}
}

func (s *StreamRef) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*s = StreamRef{VideoID: id}
		return nil
	}
	var o streamRefObject
	if err := json.Unmarshal(b, &o); err != nil {
		return err
	}
	*s = o.ref()
	return nil
}

func (s *StreamRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*s = StreamRef{VideoID: n.Value}
		return nil
	}
	var o streamRefObject
	if err := n.Decode(&o); err != nil {
		return err
	}
	*s = o.ref()
	return nil
}

// Route is a saved short link.
type Route struct {
	Path    string      `json:"path" yaml:"path"`
	Label   string      `json:"label" yaml:"label"`
	SKU     string      `json:"sku" yaml:"sku"`
	Streams []StreamRef `json:"streams" yaml:"streams"`
}

// Normalize trims fields, drops blank streams and validates the route.
func (r Route) Normalize() (Route, error) {
	r.Path = strings.TrimSpace(r.Path)
	r.Label = strings.TrimSpace(r.Label)
	if r.Label == "" || r.Path == "" || strings.TrimSpace(r.SKU) == "" {
		return Route{}, fmt.Errorf("%w: label, path and sku are required", ErrInvalid)
	}
	if !pathPattern.MatchString(r.Path) {
		return Route{}, fmt.Errorf("%w: path %q may only contain letters, digits, '-' and '_'", ErrInvalid, r.Path)
	}
	sku, err := event.ExtractSKU(r.SKU)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	r.SKU = sku
	streams := make([]StreamRef, 0, len(r.Streams))
	for _, s := range r.Streams {
		s.VideoID = strings.TrimSpace(s.VideoID)
		if s.VideoID != "" {
			streams = append(streams, s)
		}
	}
	r.Streams = streams
	return r, nil
}

// Query rebuilds the session query: sku plus vid/live for a single stream or
// vid1../live1.. when there are several.
func (r Route) Query() url.Values {
	q := url.Values{}
	q.Set("sku", r.SKU)
	for i, s := range r.Streams {
		key := "vid"
		if s.Live {
			key = "live"
		}
		if len(r.Streams) > 1 {
			key += strconv.Itoa(i + 1)
		}
		q.Set(key, s.VideoID)
	}
	return q
}

// StreamsFromQuery is the inverse of Query: it returns the stream ids in
// order. Unindexed vid/live come first, then vidN/liveN by N.
func StreamsFromQuery(q url.Values) []StreamRef {
	var out []StreamRef
	if v := q.Get("vid"); v != "" {
		out = append(out, StreamRef{VideoID: v})
	} else if v := q.Get("live"); v != "" {
		out = append(out, StreamRef{VideoID: v, Live: true})
	}
	type indexed struct {
		ref StreamRef
		n   int
	}
	var idx []indexed
	for k, vs := range q {
		live := strings.HasPrefix(k, "live")
		var rest string
		switch {
		case live:
			rest = strings.TrimPrefix(k, "live")
		case strings.HasPrefix(k, "vid"):
			rest = strings.TrimPrefix(k, "vid")
		default:
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 || len(vs) == 0 || vs[0] == "" {
			continue
		}
		idx = append(idx, indexed{n: n, ref: StreamRef{VideoID: vs[0], Live: live}})
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i].n < idx[j].n })
	for _, e := range idx {
		out = append(out, e.ref)
	}
	return out
}

// Store persists routes by path.
type Store interface {
	List(ctx context.Context) ([]Route, error)
	Get(ctx context.Context, path string) (Route, error)
	Save(ctx context.Context, r Route) error
	// ReplaceAll swaps the whole route set in one step.
	ReplaceAll(ctx context.Context, rs []Route) error
	Delete(ctx context.Context, path string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	routes map[string]Route
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{routes: make(map[string]Route)} }

// List returns every route ordered by path.
func (m *Memory) List(context.Context) ([]Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Get returns the route for path or ErrNotFound.
func (m *Memory) Get(_ context.Context, path string) (Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[path]
	if !ok {
		return Route{}, ErrNotFound
	}
	return r, nil
}

// Save normalizes r and stores it, replacing any route with the same path.
func (m *Memory) Save(_ context.Context, r Route) error {
	r, err := r.Normalize()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[r.Path] = r
	return nil
}

// ReplaceAll installs rs as the whole route set; nothing changes when any
// route fails validation.
func (m *Memory) ReplaceAll(_ context.Context, rs []Route) error {
	next := make(map[string]Route, len(rs))
	for _, r := range rs {
		r, err := r.Normalize()
		if err != nil {
			return err
		}
		next[r.Path] = r
	}
	m.mu.Lock()
	m.routes = next
	m.mu.Unlock()
	return nil
}

// Delete removes the route for path or returns ErrNotFound.
func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[path]; !ok {
		return ErrNotFound
	}
	delete(m.routes, path)
	return nil
}
