package vimeoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/robostem/matchjump/backend/stream"
)

func TestExtractVideoIDs(t *testing.T) {
	html := `
		<iframe src="https://player.vimeo.com/video/900000002?h=1"></iframe>
		<div data-video-id="900000001"></div>
		<a href="https://vimeo.com/900000003">Day 3</a>
		<a href="https://vimeo.com/4242">event home</a>
		<a href="https://vimeo.com/12345678">self</a>
		<iframe src="https://player.vimeo.com/video/900000002"></iframe>`

	got := ExtractVideoIDs(html, "12345678")
	want := []string{"900000002", "900000001", "900000003"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractVideoIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestGetVideo_DerivesStartFromEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos/555" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.Contains(r.Header.Get("Accept"), "version=3.4") {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":         "Signature Event Day 1",
			"created_time": "2024-03-01T22:00:00+00:00",
			"duration":     28800,
		})
	}))
	defer srv.Close()

	c := &Client{Token: "tok", APIBase: srv.URL}
	v, err := c.GetVideo(context.Background(), "555")
	if err != nil {
		t.Fatalf("GetVideo() error = %v", err)
	}
	want := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	if !v.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", v.Start, want)
	}
	if v.Duration != 8*time.Hour {
		t.Errorf("Duration = %v", v.Duration)
	}

	if _, err := c.GetVideo(context.Background(), "404"); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("missing video err = %v", err)
	}
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	if c := NewClient(ctx, "", "", ""); c != nil {
		t.Error("expected nil client without credentials")
	}
	if c := NewClient(ctx, "tok", "", ""); c == nil || c.Token != "tok" {
		t.Errorf("token client = %+v", c)
	}
	if c := NewClient(ctx, "", "id", "secret"); c == nil || c.HTTPClient == nil {
		t.Error("client credentials client missing http client")
	}
}

func TestDiscoverEvent(t *testing.T) {
	starts := map[string]string{
		// created_time, duration 3600 -> start is one hour earlier
		"900000001": "2024-03-02T15:00:00Z",
		"900000002": "2024-03-01T15:00:00Z",
		"900000003": "2024-03-03T15:00:00Z",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/event/777", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="https://vimeo.com/900000001"></a>
			<a href="https://vimeo.com/900000002"></a>
			<a href="https://vimeo.com/900000003"></a>
			<a href="https://vimeo.com/900000004"></a>`)
	})
	mux.HandleFunc("/videos/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/videos/")
		created, ok := starts[id]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "v" + id, "created_time": created, "duration": 3600})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{Token: "tok", APIBase: srv.URL, PageBase: srv.URL}
	got, err := c.DiscoverEvent(context.Background(), "777", 2)
	if err != nil {
		t.Fatalf("DiscoverEvent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].VideoID != "900000002" || got[1].VideoID != "900000001" {
		t.Errorf("order = %s, %s", got[0].VideoID, got[1].VideoID)
	}
	if got[0].Platform != stream.Vimeo || got[0].URL != "https://player.vimeo.com/video/900000002" {
		t.Errorf("first = %+v", got[0])
	}
	if want := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC); !got[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", got[0].Start, want)
	}
}

func TestDiscoverEvent_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>nothing archived yet</html>")
	}))
	defer srv.Close()

	c := &Client{Token: "tok", APIBase: srv.URL, PageBase: srv.URL}
	got, err := c.DiscoverEvent(context.Background(), "777", 3)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty result", got, err)
	}
}

func TestDiscoverEvent_PageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{Token: "tok", APIBase: srv.URL, PageBase: srv.URL}
	if _, err := c.DiscoverEvent(context.Background(), "777", 3); err == nil {
		t.Error("expected error for failing event page")
	}
}
