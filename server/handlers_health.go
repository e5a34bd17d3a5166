package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/robostem/matchjump/backend/telemetry"
)

// HandleHealthz responds to liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz checks storage and reports which platforms can auto-detect.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"storage", func(ctx context.Context) error {
			switch {
			case h.deps.Ping != nil:
				return h.deps.Ping(ctx)
			case h.deps.DB != nil:
				return h.deps.DB.PingContext(ctx)
			}
			return nil
		}},
		{"event_provider", func(context.Context) error {
			if h.deps.Events == nil {
				return errors.New("no event provider configured")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"sessions": h.sessions.Len(),
		"tracing":  telemetry.IsTracingEnabled(),
		"platforms": map[string]bool{
			"youtube": h.cfg.YouTubeAPIKey != "" || (h.deps.YouTubeOAuth != nil && h.deps.YouTubeOAuth.Connected(r.Context())),
			"vimeo":   h.cfg.VimeoAccessToken != "" || (h.cfg.VimeoClientID != "" && h.cfg.VimeoClientSecret != ""),
			"twitch":  h.cfg.TwitchClientID != "" && h.cfg.TwitchClientSecret != "",
		},
	})
}
