package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/robostem/matchjump/backend/shortlink"
)

func (h *Handlers) routes(w http.ResponseWriter, r *http.Request) (shortlink.Store, bool) {
	if h.deps.Routes == nil {
		http.Error(w, "short links not configured", http.StatusServiceUnavailable)
		return nil, false
	}
	return h.deps.Routes, true
}

// HandleShortLink redirects /r/{code} to the front end with the session
// query. Clients asking for JSON get the route and query instead.
func (h *Handlers) HandleShortLink(w http.ResponseWriter, r *http.Request) {
	store, ok := h.routes(w, r)
	if !ok {
		return
	}
	code := r.PathValue("code")
	route, err := store.Get(r.Context(), code)
	if err != nil {
		writeError(w, r, fmt.Errorf("route %q: %w", code, err))
		return
	}
	q := route.Query().Encode()
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, map[string]any{"route": route, "query": q})
		return
	}
	base := h.cfg.FrontendURL
	if base == "" {
		base = "/"
	}
	http.Redirect(w, r, base+"?"+q, http.StatusFound)
}

// HandleListRoutes returns every saved short link.
func (h *Handlers) HandleListRoutes(w http.ResponseWriter, r *http.Request) {
	store, ok := h.routes(w, r)
	if !ok {
		return
	}
	rs, err := store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rs == nil {
		rs = []shortlink.Route{}
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	writeJSON(w, http.StatusOK, rs)
}

// HandleReplaceRoutes swaps the full route set (admin).
func (h *Handlers) HandleReplaceRoutes(w http.ResponseWriter, r *http.Request) {
	store, ok := h.routes(w, r)
	if !ok {
		return
	}
	var rs []shortlink.Route
	if !decodeJSON(w, r, &rs) {
		return
	}
	if err := store.ReplaceAll(r.Context(), rs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(rs)})
}

// HandleSaveRoute creates or updates one route (admin).
func (h *Handlers) HandleSaveRoute(w http.ResponseWriter, r *http.Request) {
	store, ok := h.routes(w, r)
	if !ok {
		return
	}
	var route shortlink.Route
	if !decodeJSON(w, r, &route) {
		return
	}
	if err := store.Save(r.Context(), route); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := store.Get(r.Context(), strings.TrimSpace(route.Path))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// HandleDeleteRoute removes one route (admin).
func (h *Handlers) HandleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	store, ok := h.routes(w, r)
	if !ok {
		return
	}
	if err := store.Delete(r.Context(), r.PathValue("code")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
