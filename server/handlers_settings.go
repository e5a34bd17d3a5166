package server

import (
	"net/http"
	"strings"

	"github.com/robostem/matchjump/backend/kv"
)

func (h *Handlers) settings() kv.Store {
	if h.deps.Settings != nil {
		return h.deps.Settings
	}
	return h.deps.KV
}

// HandleGetSettings reports which user settings are present; secret values
// are never returned.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	key := kv.GetOr(r.Context(), h.settings(), YouTubeKeySetting, "")
	writeJSON(w, http.StatusOK, map[string]any{
		"youtubeKeySet":     key != "",
		"serverYouTubeKey":  h.cfg.YouTubeAPIKey != "",
		"youtubeOAuth":      h.deps.YouTubeOAuth != nil,
		"encryptedSettings": h.deps.Settings != nil,
	})
}

// HandleSetYouTubeKey stores the user's YouTube API key override; an empty
// key clears it.
func (h *Handlers) HandleSetYouTubeKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	key := strings.TrimSpace(body.Key)
	var err error
	if key == "" {
		err = h.settings().Delete(r.Context(), YouTubeKeySetting)
	} else {
		err = h.settings().Set(r.Context(), YouTubeKeySetting, key)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
