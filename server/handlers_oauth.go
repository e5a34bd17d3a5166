package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/robostem/matchjump/backend/telemetry"
)

const oauthStateTTL = 10 * time.Minute

// HandleYouTubeOAuthStart sends the browser to Google's consent page for a
// read-only YouTube connection, used to read private or unlisted streams.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.YouTubeOAuth == nil {
		http.Error(w, "youtube oauth not configured (need YT_CLIENT_ID + YT_CLIENT_SECRET and postgres)", http.StatusBadRequest)
		return
	}
	st := uuid.NewString()
	h.addOAuthState(st, time.Now().Add(oauthStateTTL))
	http.Redirect(w, r, h.deps.YouTubeOAuth.AuthCodeURL(st), http.StatusFound)
}

// HandleYouTubeOAuthCallback exchanges the code, stores the tokens and
// returns the user to the settings page (or JSON when no frontend is set).
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.deps.YouTubeOAuth == nil {
		http.Error(w, "youtube oauth not configured", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	st := q.Get("state")
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	if denied := q.Get("error"); denied != "" {
		h.finishOAuth(w, r, url.Values{"youtube": {"denied"}}, http.StatusBadRequest, map[string]any{"status": "denied", "error": denied})
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	tok, err := h.deps.YouTubeOAuth.Exchange(r.Context(), code)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("youtube oauth exchange failed",
			slog.String("component", "youtube_oauth"), slog.Any("err", err))
		writeError(w, r, err)
		return
	}
	h.finishOAuth(w, r, url.Values{"youtube": {"connected"}}, http.StatusOK, map[string]any{
		"status":                "connected",
		"expiry":                tok.Expiry,
		"refresh_token_present": tok.RefreshToken != "",
	})
}

// finishOAuth redirects to the frontend settings view with q, or writes body
// when FRONTEND_URL is the default "/".
func (h *Handlers) finishOAuth(w http.ResponseWriter, r *http.Request, q url.Values, status int, body map[string]any) {
	base := h.cfg.FrontendURL
	if base == "" || base == "/" {
		writeJSON(w, status, body)
		return
	}
	http.Redirect(w, r, base+"settings?"+q.Encode(), http.StatusFound)
}
