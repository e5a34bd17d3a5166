package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/history"
	"github.com/robostem/matchjump/backend/resolve"
	"github.com/robostem/matchjump/backend/shortlink"
	"github.com/robostem/matchjump/backend/stream"
	"github.com/robostem/matchjump/backend/streamsync"
	"github.com/robostem/matchjump/backend/telemetry"
)

var (
	errSessionNotFound = errors.New("session not found")
	errDayBoundRemove  = errors.New("day streams cannot be removed")
)

type sessionResponse struct {
	streamsync.Snapshot
	ID       string               `json:"id"`
	Outcomes []streamsync.Outcome `json:"outcomes,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

func (h *Handlers) lookupSession(w http.ResponseWriter, r *http.Request) (string, *sessionEntry, bool) {
	id := r.PathValue("id")
	e, ok := h.sessions.get(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%s: %w", id, errSessionNotFound))
		return "", nil, false
	}
	return id, e, true
}

// remember snapshots the session into history; failures only log.
func (h *Handlers) remember(ctx context.Context, sess *streamsync.Session) {
	if h.deps.History == nil {
		return
	}
	entry := history.FromSession(sess.Event(), sess.Registry(), time.Now())
	if err := h.deps.History.Record(ctx, entry); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("failed to record history", slog.Int("event_id", entry.EventID), slog.Any("err", err))
	}
}

// streamURL turns a stored stream reference into a URL: full URLs pass
// through, bare ids are YouTube video ids.
func streamURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "/") || strings.Contains(ref, ".") {
		return ref
	}
	return stream.CanonicalURL(stream.YouTube, ref)
}

func (h *Handlers) fetchEvent(ctx context.Context, raw string) (*event.Event, error) {
	if h.deps.Events == nil {
		return nil, fmt.Errorf("no event provider configured: %w", streamsync.ErrUnavailable)
	}
	sku, err := event.ExtractSKU(raw)
	if err != nil {
		return nil, err
	}
	return h.deps.Events.EventBySKU(ctx, sku)
}

// HandleEvent returns an event and its day slots.
func (h *Handlers) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.fetchEvent(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	label := h.cfgGet(r.Context(), "SINGLE_DAY_LABEL")
	writeJSON(w, http.StatusOK, map[string]any{
		"event": ev,
		"days":  event.Partitioner{SingleDayLabel: label}.Partition(ev.Start, ev.End),
	})
}

type createSessionRequest struct {
	EventURL string   `json:"eventUrl"`
	SKU      string   `json:"sku"`
	Streams  []string `json:"streams"`
}

// HandleCreateSession starts a session for an event. Streams fill the day
// slots in order and extra streams become backups. The body may be omitted
// in favour of the share-link query (?sku=&vid=... or vid1..).
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.EventURL == "" && req.SKU == "" {
		q := r.URL.Query()
		req.SKU = q.Get("sku")
		for _, ref := range shortlink.StreamsFromQuery(q) {
			req.Streams = append(req.Streams, ref.VideoID)
		}
	}
	raw := req.EventURL
	if raw == "" {
		raw = req.SKU
	}
	ctx := r.Context()
	ev, err := h.fetchEvent(ctx, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sOpts, lOpts := h.sessionOptions(ctx)
	sOpts.Logger = telemetry.LoggerWithCorr(ctx)
	reg := stream.ForEvent(stream.Registry{}, ev, lOpts)
	sess := streamsync.New(ev, reg, sOpts)

	var warnings []string
	days := reg.DayBound()
	for i, ref := range req.Streams {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		var slotID string
		if i < len(days) {
			slotID = days[i].ID
		} else {
			slotID = sess.AddBackup().ID
		}
		if err := sess.SetURL(ctx, slotID, streamURL(ref)); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", slotID, err))
		}
	}
	outcomes := sess.AutoDetectAll(ctx)
	id := h.sessions.Add(sess)
	h.remember(ctx, sess)
	telemetry.LoggerWithCorr(ctx).Info("session created",
		slog.String("component", "sessions"), slog.String("session", id), slog.String("sku", ev.SKU), slog.Int("streams", len(req.Streams)))
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Snapshot: sess.Snapshot(), Outcomes: outcomes, Warnings: warnings})
}

// HandleGetSession returns the session snapshot.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: e.sess.Snapshot()})
}

// HandleDeleteSession ends a session.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(r.PathValue("id")) {
		writeError(w, r, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDetectAll runs auto-detect for every stream not yet looked up.
func (h *Handlers) HandleDetectAll(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	outcomes := e.sess.AutoDetectAll(r.Context())
	h.remember(r.Context(), e.sess)
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: e.sess.Snapshot(), Outcomes: outcomes})
}

// HandleAddStream appends a backup slot.
func (h *Handlers) HandleAddStream(w http.ResponseWriter, r *http.Request) {
	_, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, e.sess.AddBackup())
}

// HandleRemoveStream deletes a backup slot.
func (h *Handlers) HandleRemoveStream(w http.ResponseWriter, r *http.Request) {
	_, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	slotID := r.PathValue("slot")
	if _, exists := e.sess.Registry().Slot(slotID); !exists {
		writeError(w, r, fmt.Errorf("%s: %w", slotID, stream.ErrSlotNotFound))
		return
	}
	if !e.sess.Remove(slotID) {
		writeError(w, r, fmt.Errorf("%s: %w", slotID, errDayBoundRemove))
		return
	}
	h.remember(r.Context(), e.sess)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetURL stores a stream URL and auto-detects its start. A Vimeo
// event page fills the day slots instead.
func (h *Handlers) HandleSetURL(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		URL string `json:"url"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	ctx := r.Context()
	slotID := r.PathValue("slot")
	if err := e.sess.SetURL(ctx, slotID, body.URL); err != nil {
		h.remember(ctx, e.sess)
		writeError(w, r, err)
		return
	}
	resp := sessionResponse{ID: id}
	if slot, ok := e.sess.Registry().Slot(slotID); ok && slot.Key() != "" && !slot.Synced() {
		out, err := e.sess.AutoDetect(ctx, slotID)
		if err == nil {
			resp.Outcomes = []streamsync.Outcome{out}
		} else if !errors.Is(err, streamsync.ErrAlreadyAttempted) {
			resp.Warnings = append(resp.Warnings, err.Error())
		}
	}
	h.remember(ctx, e.sess)
	resp.Snapshot = e.sess.Snapshot()
	writeJSON(w, http.StatusOK, resp)
}

// HandleDetect auto-detects one slot.
func (h *Handlers) HandleDetect(w http.ResponseWriter, r *http.Request) {
	_, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	out, err := e.sess.AutoDetect(r.Context(), r.PathValue("slot"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.remember(r.Context(), e.sess)
	writeJSON(w, http.StatusOK, out)
}

// HandleManualSync anchors a slot to a match seen at an offset.
func (h *Handlers) HandleManualSync(w http.ResponseWriter, r *http.Request) {
	_, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		MatchID       int     `json:"matchId"`
		OffsetSeconds float64 `json:"offsetSeconds"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	m, found := e.match(body.MatchID)
	if !found {
		writeError(w, r, fmt.Errorf("match %d: load the team's matches first: %w", body.MatchID, event.ErrNotFound))
		return
	}
	slot, err := e.sess.ManualSync(r.PathValue("slot"), m, body.OffsetSeconds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.remember(r.Context(), e.sess)
	writeJSON(w, http.StatusOK, slot)
}

// HandleNudge shifts a slot's anchor.
func (h *Handlers) HandleNudge(w http.ResponseWriter, r *http.Request) {
	_, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		DeltaSeconds float64 `json:"deltaSeconds"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	slot, err := e.sess.Nudge(r.PathValue("slot"), body.DeltaSeconds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.remember(r.Context(), e.sess)
	writeJSON(w, http.StatusOK, slot)
}

// HandleRepair swaps a mismatched slot onto its actual day.
func (h *Handlers) HandleRepair(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	m, err := e.sess.Repair(r.PathValue("slot"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.remember(r.Context(), e.sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"repaired": m != nil,
		"mismatch": m,
		"slots":    e.sess.Snapshot().Slots,
	})
}

// HandleSwap exchanges the videos of two slots.
func (h *Handlers) HandleSwap(w http.ResponseWriter, r *http.Request) {
	id, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var body struct {
		A string `json:"a"`
		B string `json:"b"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := e.sess.Swap(body.A, body.B); err != nil {
		writeError(w, r, err)
		return
	}
	h.remember(r.Context(), e.sess)
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: e.sess.Snapshot()})
}

// matchView is a match with where and whether it can be watched.
type matchView struct {
	event.Match
	Reachability  resolve.Reachability `json:"availability"`
	OffsetSeconds *float64             `json:"offsetSeconds,omitempty"`
	JumpURL       string               `json:"jumpUrl,omitempty"`
	BeforeStream  bool                 `json:"beforeStreamStart,omitempty"`
}

func viewMatch(m event.Match, reg stream.Registry, ev *event.Event, maxDays int) matchView {
	v := matchView{Match: m, Reachability: resolve.Availability(m, reg, ev, maxDays)}
	slot := v.Reachability.Slot
	if slot == nil || !slot.Synced() {
		return v
	}
	off, err := resolve.ToPlaybackOffset(m, *slot)
	v.OffsetSeconds = &off
	switch {
	case errors.Is(err, resolve.ErrBeforeStreamStart):
		v.BeforeStream = true
		v.Reachability.Reachable = false
	case err == nil:
		v.JumpURL = stream.JumpURL(slot.Platform, slot.VideoID, off)
	}
	return v
}

// HandleTeamMatches lists a team's matches with stream, offset and
// availability for the session's current streams.
func (h *Handlers) HandleTeamMatches(w http.ResponseWriter, r *http.Request) {
	_, e, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if h.deps.Events == nil {
		writeError(w, r, fmt.Errorf("no event provider configured: %w", streamsync.ErrUnavailable))
		return
	}
	ctx := r.Context()
	ev := e.sess.Event()
	team, err := h.deps.Events.TeamByNumber(ctx, r.PathValue("number"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	matches, err := h.deps.Events.TeamMatches(ctx, ev, team.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.rememberMatches(matches)

	reg := e.sess.Registry()
	maxDays := e.sess.MaxMismatchDays()
	views := make([]matchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, viewMatch(m, reg, ev, maxDays))
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team, "matches": views})
}
