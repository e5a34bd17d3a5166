package server

import (
	"net/http"

	"github.com/robostem/matchjump/backend/history"
	"github.com/robostem/matchjump/backend/stream"
	"github.com/robostem/matchjump/backend/streamsync"
	"github.com/robostem/matchjump/backend/telemetry"
)

type historyView struct {
	history.Entry
	Warnings []history.Warning `json:"warnings,omitempty"`
}

func (h *Handlers) historyStore(w http.ResponseWriter) (history.Store, bool) {
	if h.deps.History == nil {
		http.Error(w, "history not configured", http.StatusServiceUnavailable)
		return nil, false
	}
	return h.deps.History, true
}

func (h *Handlers) historyEntry(w http.ResponseWriter, r *http.Request) (history.Entry, bool) {
	store, ok := h.historyStore(w)
	if !ok {
		return history.Entry{}, false
	}
	id, ok := pathInt(r, "eventId")
	if !ok {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return history.Entry{}, false
	}
	e, err := store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return history.Entry{}, false
	}
	return e, true
}

// HandleListHistory returns recently viewed events, newest first.
func (h *Handlers) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	store, ok := h.historyStore(w)
	if !ok {
		return
	}
	entries, err := store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]historyView, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyView{Entry: e, Warnings: e.Warnings()})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetHistory returns one entry.
func (h *Handlers) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	e, ok := h.historyEntry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, historyView{Entry: e, Warnings: e.Warnings()})
}

// HandleDeleteHistory forgets an event.
func (h *Handlers) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	store, ok := h.historyStore(w)
	if !ok {
		return
	}
	id, ok := pathInt(r, "eventId")
	if !ok {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}
	if err := store.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRestoreHistory reopens a saved event with its streams and anchors.
// Restored anchors count as manual so auto-detect leaves them alone.
func (h *Handlers) HandleRestoreHistory(w http.ResponseWriter, r *http.Request) {
	e, ok := h.historyEntry(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	ev, err := h.fetchEvent(ctx, e.SKU)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sOpts, lOpts := h.sessionOptions(ctx)
	sOpts.Logger = telemetry.LoggerWithCorr(ctx)

	reg := stream.ForEvent(stream.Registry{}, ev, lOpts)
	if len(e.Streams) > 0 {
		slots := make([]stream.Slot, 0, len(e.Streams))
		for _, s := range e.Streams {
			slots = append(slots, stream.Slot{ID: s.ID, Label: s.Label, DayIndex: s.DayIndex, DivisionID: s.DivisionID})
		}
		reg = restoreDays(reg, stream.New(ev.ID, slots...))
		for _, s := range e.Streams {
			reg, _ = reg.SetURL(s.ID, s.URL)
			if s.SyncAnchor != nil {
				reg, _ = reg.SetSync(s.ID, s.SyncAnchor, stream.SyncManual)
			}
		}
	}
	sess := streamsync.New(ev, reg, sOpts)
	outcomes := sess.AutoDetectAll(ctx)
	id := h.sessions.Add(sess)
	h.remember(ctx, sess)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Snapshot: sess.Snapshot(), Outcomes: outcomes})
}

// restoreDays keeps every day slot of fresh and appends saved slots that
// fresh does not have (backups, or days from a since-changed schedule).
func restoreDays(fresh, saved stream.Registry) stream.Registry {
	slots := fresh.Slots()
	for _, s := range saved.Slots() {
		if _, ok := fresh.Slot(s.ID); ok {
			continue
		}
		if s.DayIndex != nil {
			// the event no longer has that day
			s.DayIndex = nil
		}
		slots = append(slots, s)
	}
	return stream.New(fresh.EventID(), slots...)
}
