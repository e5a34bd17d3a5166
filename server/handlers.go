// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robostem/matchjump/backend/config"
	"github.com/robostem/matchjump/backend/history"
	"github.com/robostem/matchjump/backend/kv"
	"github.com/robostem/matchjump/backend/robotevents"
	"github.com/robostem/matchjump/backend/shortlink"
	"github.com/robostem/matchjump/backend/streamsync"
	"github.com/robostem/matchjump/backend/telemetry"
	"github.com/robostem/matchjump/backend/youtubeapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
	// YouTubeKeySetting is the settings key holding the user's API key.
	YouTubeKeySetting = "settings:youtube-key"
)

// Deps are the collaborators the API is built on. DB, Settings, History,
// Routes and YouTubeOAuth are optional.
type Deps struct {
	Config     *config.Config
	DB         *sql.DB
	KV         kv.Store
	Settings   kv.Store
	Events     robotevents.Provider
	Metadata   streamsync.MetadataSource
	Discoverer streamsync.Discoverer
	History    history.Store
	Routes     shortlink.Store
	// YouTubeOAuth enables /auth/youtube/*; nil when client id/secret are unset.
	YouTubeOAuth *youtubeapi.Service
	// Ping overrides the readiness probe of the storage backend.
	Ping func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps       Deps
	cfg        *config.Config
	sessions   *Sessions
	ctx        context.Context
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	if deps.KV == nil {
		deps.KV = kv.NewMemory()
	}
	return &Handlers{
		deps:       deps,
		cfg:        cfg,
		sessions:   NewSessions(cfg.SessionIdleTTL),
		ctx:        ctx,
		stateStore: make(map[string]time.Time),
	}
}

// Sessions exposes the session manager, e.g. for the idle sweeper.
func (h *Handlers) Sessions() *Sessions { return h.sessions }

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	// over the limit after cleanup: drop the state and let the flow fail
	if len(h.stateStore) >= maxOAuthStates {
		return
	}
	h.stateStore[state] = expiry
}

// consumeOAuthState validates and removes a state value.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && time.Now().Before(exp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

// statusFor maps an error onto an HTTP status by its class.
func statusFor(err error) int {
	switch streamsync.Classify(err) {
	case streamsync.ErrorClassInput:
		return http.StatusBadRequest
	case streamsync.ErrorClassNotFound:
		return http.StatusNotFound
	case streamsync.ErrorClassUnavailable:
		return http.StatusBadGateway
	case streamsync.ErrorClassPrecondition:
		return http.StatusConflict
	}
	switch {
	case errors.Is(err, shortlink.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, shortlink.ErrNotFound), errors.Is(err, history.ErrNotFound), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errDayBoundRemove), errors.Is(err, streamsync.ErrNoSwapTarget):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := telemetry.LoggerWithCorr(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("err", err))
	} else {
		logger.Debug("request rejected", slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("err", err))
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Class: streamsync.Classify(err).String()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json: " + err.Error(), Class: streamsync.ErrorClassInput.String()})
		return false
	}
	return true
}

// pathInt parses a numeric path value.
func pathInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	return n, err == nil
}
