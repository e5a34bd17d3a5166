package streamsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/resolve"
	"github.com/robostem/matchjump/backend/stream"
	"github.com/robostem/matchjump/backend/telemetry"
)

// Messages attached to a slot after auto-detect.
const (
	MessageUnavailable  = "Unable to detect stream start time. You'll need to manually sync."
	MessageLookupFailed = "Error loading stream info. Check your video platform API key in settings."
	MessageNoArchives   = "No archived videos found in this event"
)

// ErrNoSwapTarget is returned by Repair when no slot is bound to the stream's
// actual day.
var ErrNoSwapTarget = errors.New("no stream assigned to the detected day")

// Options configure a Session.
type Options struct {
	Metadata   MetadataSource
	Discoverer Discoverer
	Logger     *slog.Logger
	// MaxMismatchDays bounds mismatch reports; <= 0 uses resolve.DefaultMaxMismatchDays.
	MaxMismatchDays int
	// DetectTimeout caps one metadata lookup; 0 means no extra deadline.
	DetectTimeout time.Duration
	// DetectConcurrency limits parallel lookups in AutoDetectAll; 0 means 4.
	DetectConcurrency int
}

// Outcome is the result of one auto-detect call.
type Outcome struct {
	Anchor  *time.Time `json:"anchor,omitempty"`
	SlotID  string     `json:"slotId"`
	Message string     `json:"message,omitempty"`
	Status  Status     `json:"status"`
	// Stale is set when the result was dropped because no slot still
	// carried the video without a manual anchor.
	Stale bool `json:"stale,omitempty"`
}

// Session is the live stream state for one user and one event.
type Session struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	ev        *event.Event
	reg       stream.Registry
	signature string
	attempted map[string]struct{}
	inFlight  map[string]struct{}
	loading   map[string]bool
	messages  map[string]string
	players   map[string]Player
}

// New starts a session for ev on top of reg.
func New(ev *event.Event, reg stream.Registry, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DetectConcurrency <= 0 {
		opts.DetectConcurrency = 4
	}
	return &Session{
		opts:      opts,
		log:       opts.Logger.With(slog.String("component", "streamsync")),
		ev:        ev,
		reg:       reg,
		signature: reg.Signature(),
		attempted: make(map[string]struct{}),
		inFlight:  make(map[string]struct{}),
		loading:   make(map[string]bool),
		messages:  make(map[string]string),
		players:   make(map[string]Player),
	}
}

// Event returns the session's event.
func (s *Session) Event() *event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ev
}

// Registry returns the current registry value.
func (s *Session) Registry() stream.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg
}

// Update applies fn to the latest registry under the session lock.
func (s *Session) Update(fn func(stream.Registry) stream.Registry) stream.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(fn(s.reg))
	return s.reg
}

// applyLocked installs next and forgets attempted videos when the set of
// videos in the registry changed.
func (s *Session) applyLocked(next stream.Registry) {
	s.reg = next
	if sig := next.Signature(); sig != s.signature {
		s.signature = sig
		s.attempted = make(map[string]struct{})
	}
}

// AddBackup appends an unbound slot.
func (s *Session) AddBackup() stream.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, slot := s.reg.AddBackup()
	s.applyLocked(next)
	return slot
}

// Remove deletes a backup slot; it reports false when nothing was removed.
func (s *Session) Remove(slotID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.reg.Remove(slotID)
	if ok {
		s.applyLocked(next)
		delete(s.messages, slotID)
		delete(s.loading, slotID)
		delete(s.players, slotID)
	}
	return ok
}

// SetURL stores raw on the slot. A Vimeo event page instead runs bulk
// discovery and fills the day-bound slots in order.
func (s *Session) SetURL(ctx context.Context, slotID, raw string) error {
	var vimeoEvent *stream.VimeoEventError
	if _, _, err := stream.Parse(raw); errors.As(err, &vimeoEvent) {
		if s.opts.Discoverer == nil {
			return err
		}
		return s.discover(ctx, slotID, vimeoEvent.EventID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.reg.SetURL(slotID, raw)
	if errors.Is(err, stream.ErrSlotNotFound) {
		return err
	}
	s.applyLocked(next)
	delete(s.messages, slotID)
	return err
}

func (s *Session) discover(ctx context.Context, slotID, eventID string) error {
	s.mu.Lock()
	if _, ok := s.reg.Slot(slotID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", slotID, stream.ErrSlotNotFound)
	}
	limit := len(s.reg.DayBound())
	s.loading[slotID] = true
	delete(s.messages, slotID)
	s.mu.Unlock()

	found, err := s.opts.Discoverer.DiscoverEvent(ctx, eventID, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loading, slotID)
	if err != nil {
		telemetry.RecordDiscovery("error")
		s.messages[slotID] = err.Error()
		s.log.Warn("vimeo event discovery failed", slog.String("event_id", eventID), slog.Any("err", err))
		return fmt.Errorf("vimeo event %s: %w", eventID, err)
	}
	if len(found) == 0 {
		telemetry.RecordDiscovery("empty")
		s.messages[slotID] = MessageNoArchives
		return fmt.Errorf("vimeo event %s: %w", eventID, ErrNothingDiscovered)
	}

	next := s.reg
	days := next.DayBound()
	var keys []string
	for i, d := range found {
		if i >= len(days) {
			break
		}
		start := d.Start
		next, err = next.Assign(days[i].ID, stream.Assignment{
			Anchor:   &start,
			URL:      d.URL,
			Platform: d.Platform,
			VideoID:  d.VideoID,
			Name:     d.Name,
		})
		if err != nil {
			return err
		}
		delete(s.messages, days[i].ID)
		keys = append(keys, string(d.Platform)+":"+d.VideoID)
	}
	s.applyLocked(next)
	for _, k := range keys {
		s.attempted[k] = struct{}{}
	}
	telemetry.RecordDiscovery("assigned")
	s.log.Info("vimeo event streams assigned", slog.String("event_id", eventID), slog.Int("count", len(keys)))
	return nil
}

// AutoDetect looks up the slot's video on its platform and records the
// outcome. Each distinct video is looked up at most once until the set of
// videos in the registry changes; repeated calls return ErrAlreadyAttempted.
// Platform failures are not returned: the slot is marked unavailable with a
// message and the user falls back to manual sync.
func (s *Session) AutoDetect(ctx context.Context, slotID string) (Outcome, error) {
	s.mu.Lock()
	slot, ok := s.reg.Slot(slotID)
	if !ok {
		s.mu.Unlock()
		return Outcome{}, fmt.Errorf("%s: %w", slotID, stream.ErrSlotNotFound)
	}
	key := slot.Key()
	if key == "" {
		s.mu.Unlock()
		return Outcome{SlotID: slotID}, fmt.Errorf("%s: %w", slotID, ErrNoVideo)
	}
	if s.opts.Metadata == nil {
		s.mu.Unlock()
		return Outcome{SlotID: slotID}, fmt.Errorf("no metadata source configured: %w", ErrUnavailable)
	}
	_, done := s.attempted[key]
	_, busy := s.inFlight[key]
	if done || busy {
		s.mu.Unlock()
		telemetry.RecordDetect("deduped")
		return Outcome{SlotID: slotID}, ErrAlreadyAttempted
	}
	s.attempted[key] = struct{}{}
	s.inFlight[key] = struct{}{}
	s.loading[slotID] = true
	delete(s.messages, slotID)
	s.mu.Unlock()

	md, err := s.lookup(ctx, slot.Platform, slot.VideoID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
	delete(s.loading, slotID)

	// Apply to every slot still carrying the video, including one it moved
	// to while the lookup ran. Manually synced slots keep their anchor.
	targets := s.detectTargetsLocked(slotID, key)
	if len(targets) == 0 {
		s.log.Debug("dropping stale auto-detect result", slog.String("slot", slotID), slog.String("video", key))
		return Outcome{SlotID: slotID, Stale: true}, nil
	}

	out := Outcome{SlotID: targets[0], Status: md.Status}
	var anchor *time.Time
	status := stream.SyncUnavailable
	switch {
	case err != nil:
		s.log.Warn("metadata lookup failed", slog.String("slot", out.SlotID), slog.String("video", key), slog.Any("err", err))
		out.Status = StatusUnavailable
		out.Message = MessageLookupFailed
		telemetry.RecordDetect("error")
	case md.Status == StatusStarted && md.ActualStart != nil:
		anchor = md.ActualStart
		status = stream.SyncAuto
		telemetry.RecordDetect(string(StatusStarted))
	case md.Status == StatusScheduled:
		status = stream.SyncScheduled
		out.Message = scheduledMessage(md.ScheduledStart)
		telemetry.RecordDetect(string(StatusScheduled))
	default:
		out.Status = StatusUnavailable
		out.Message = MessageUnavailable
		telemetry.RecordDetect(string(StatusUnavailable))
	}

	next := s.reg
	for _, id := range targets {
		next, _ = next.SetSync(id, anchor, status)
		if md.Name != "" {
			next = next.SetName(id, md.Name)
		}
	}
	s.applyLocked(next)
	for _, id := range targets {
		if out.Message != "" {
			s.messages[id] = out.Message
		}
		updated, ok := s.reg.Slot(id)
		if !ok {
			continue
		}
		if id == out.SlotID {
			out.Anchor = updated.SyncAnchor
		}
		if resolve.Check(updated, s.reg, s.ev, s.opts.MaxMismatchDays) != nil {
			telemetry.RecordMismatches(1)
		}
	}
	return out, nil
}

// detectTargetsLocked lists the slots an auto-detect result for key applies
// to, with slotID first when it still qualifies.
func (s *Session) detectTargetsLocked(slotID, key string) []string {
	var ids []string
	for _, slot := range s.reg.Slots() {
		if slot.Key() != key || slot.Sync == stream.SyncManual {
			continue
		}
		if slot.ID == slotID {
			ids = append([]string{slot.ID}, ids...)
			continue
		}
		ids = append(ids, slot.ID)
	}
	return ids
}

func scheduledMessage(at *time.Time) string {
	if at == nil {
		return "Stream has not started yet."
	}
	return "Stream has not started yet. Scheduled for " + at.UTC().Format("Jan 2, 2006 15:04 MST") + "."
}

func (s *Session) lookup(ctx context.Context, p stream.Platform, videoID string) (Metadata, error) {
	if s.opts.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.DetectTimeout)
		defer cancel()
	}
	return s.opts.Metadata.Lookup(ctx, p, videoID)
}

// AutoDetectAll runs AutoDetect concurrently for every slot whose video has
// no anchor and has not been attempted. Slots sharing a video are looked up
// once and all receive the result.
func (s *Session) AutoDetectAll(ctx context.Context) []Outcome {
	s.mu.Lock()
	var ids []string
	seen := make(map[string]bool)
	for _, slot := range s.reg.Slots() {
		k := slot.Key()
		if k == "" || slot.Synced() || seen[k] {
			continue
		}
		if _, done := s.attempted[k]; done {
			continue
		}
		seen[k] = true
		ids = append(ids, slot.ID)
	}
	s.mu.Unlock()

	results := make([]*Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(s.opts.DetectConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			out, err := s.AutoDetect(ctx, id)
			if err == nil {
				results[i] = &out
			}
			return nil
		})
	}
	_ = g.Wait()

	outs := make([]Outcome, 0, len(ids))
	for _, r := range results {
		if r != nil {
			outs = append(outs, *r)
		}
	}
	return outs
}

// ManualSync anchors the slot so that offsetSeconds of playback shows the
// start of m.
func (s *Session) ManualSync(slotID string, m event.Match, offsetSeconds float64) (stream.Slot, error) {
	if m.Start == nil {
		return stream.Slot{}, resolve.ErrNotPlayed
	}
	anchor := resolve.AnchorAt(*m.Start, offsetSeconds)

	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.reg.SetSync(slotID, &anchor, stream.SyncManual)
	if err != nil {
		return stream.Slot{}, err
	}
	s.applyLocked(next)
	delete(s.messages, slotID)
	telemetry.RecordManualSync()
	slot, _ := s.reg.Slot(slotID)
	s.log.Info("manual sync", slog.String("slot", slotID), slog.Int("match", m.ID), slog.Float64("offset_seconds", offsetSeconds))
	return slot, nil
}

// ManualSyncFromPlayer reads the current offset of the slot's player and
// anchors the slot to m at that offset.
func (s *Session) ManualSyncFromPlayer(slotID string, m event.Match) (stream.Slot, error) {
	s.mu.Lock()
	p := s.players[slotID]
	s.mu.Unlock()
	if p == nil {
		return stream.Slot{}, fmt.Errorf("%s: %w", slotID, ErrNoPlayer)
	}
	off, err := p.CurrentOffset()
	if err != nil {
		return stream.Slot{}, fmt.Errorf("read player offset: %w", err)
	}
	return s.ManualSync(slotID, m, off)
}

// Nudge shifts an existing anchor by deltaSeconds.
func (s *Session) Nudge(slotID string, deltaSeconds float64) (stream.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.reg.Slot(slotID)
	if !ok {
		return stream.Slot{}, fmt.Errorf("%s: %w", slotID, stream.ErrSlotNotFound)
	}
	if slot.SyncAnchor == nil {
		return slot, fmt.Errorf("%s: %w", slotID, resolve.ErrNotSynced)
	}
	anchor := resolve.Shift(*slot.SyncAnchor, deltaSeconds)
	next, err := s.reg.SetSync(slotID, &anchor, stream.SyncManual)
	if err != nil {
		return slot, err
	}
	s.applyLocked(next)
	telemetry.RecordManualSync()
	slot, _ = s.reg.Slot(slotID)
	return slot, nil
}

// Swap exchanges the videos of two slots.
func (s *Session) Swap(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(a, b)
}

func (s *Session) swapLocked(a, b string) error {
	next, err := s.reg.Swap(a, b)
	if err != nil {
		return err
	}
	s.applyLocked(next)
	s.messages[a], s.messages[b] = s.messages[b], s.messages[a]
	for _, id := range []string{a, b} {
		if s.messages[id] == "" {
			delete(s.messages, id)
		}
	}
	return nil
}

// Repair swaps a mismatched slot with the slot bound to its actual day. It
// returns the mismatch it repaired, or nil when the slot has none. The check
// and the swap run against the same registry value.
func (s *Session) Repair(slotID string) (*resolve.Mismatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.reg.Slot(slotID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", slotID, stream.ErrSlotNotFound)
	}
	m := resolve.Check(slot, s.reg, s.ev, s.opts.MaxMismatchDays)
	if m == nil {
		return nil, nil
	}
	if !m.CanSwap {
		return m, ErrNoSwapTarget
	}
	if err := s.swapLocked(m.SlotID, m.CorrectDayStreamID); err != nil {
		return m, err
	}
	telemetry.RecordSwap()
	s.log.Info("repaired day mismatch", slog.String("slot", m.SlotID), slog.String("with", m.CorrectDayStreamID))
	return m, nil
}

// RegisterPlayer attaches the playback control for a slot.
func (s *Session) RegisterPlayer(slotID string, p Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[slotID] = p
}

// UnregisterPlayer detaches a slot's player.
func (s *Session) UnregisterPlayer(slotID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, slotID)
}

// SeekResult describes a completed seek.
type SeekResult struct {
	SlotID string  `json:"slotId"`
	URL    string  `json:"url"`
	Offset float64 `json:"offsetSeconds"`
}

// Seek resolves the slot and offset for m and drives that slot's player. No
// seek is issued on any precondition failure.
func (s *Session) Seek(ctx context.Context, m event.Match) (SeekResult, error) {
	s.mu.Lock()
	slot, off, err := resolve.Locate(m, s.reg, s.ev)
	p := s.players[slot.ID]
	s.mu.Unlock()

	if err != nil {
		telemetry.RecordSeekRejected(Classify(err).String())
		telemetry.LoggerWithCorr(ctx).Info("seek rejected", slog.Int("match", m.ID), slog.Any("err", err))
		return SeekResult{SlotID: slot.ID, Offset: off}, err
	}
	if p == nil {
		telemetry.RecordSeekRejected("no-player")
		return SeekResult{SlotID: slot.ID, Offset: off}, fmt.Errorf("%s: %w", slot.ID, ErrNoPlayer)
	}
	if err := p.SeekTo(off); err != nil {
		return SeekResult{SlotID: slot.ID, Offset: off}, fmt.Errorf("seek %s: %w", slot.ID, err)
	}
	if err := p.Play(); err != nil {
		return SeekResult{SlotID: slot.ID, Offset: off}, fmt.Errorf("play %s: %w", slot.ID, err)
	}
	return SeekResult{SlotID: slot.ID, Offset: off, URL: stream.JumpURL(slot.Platform, slot.VideoID, off)}, nil
}

// SlotView is a slot plus its transient session state.
type SlotView struct {
	stream.Slot
	Mismatch *resolve.Mismatch `json:"mismatch,omitempty"`
	State    stream.State      `json:"state"`
	Message  string            `json:"message,omitempty"`
	Loading  bool              `json:"loading"`
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	Event *event.Event `json:"event"`
	Slots []SlotView   `json:"slots"`
	// Mismatches counts slots with a day-mismatch report.
	Mismatches int `json:"mismatches"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Event: s.ev, Mismatches: len(resolve.CheckAll(s.reg, s.ev, s.opts.MaxMismatchDays))}
	for _, slot := range s.reg.Slots() {
		snap.Slots = append(snap.Slots, SlotView{
			Slot:     slot,
			State:    slot.State(),
			Loading:  s.loading[slot.ID],
			Message:  s.messages[slot.ID],
			Mismatch: resolve.Check(slot, s.reg, s.ev, s.opts.MaxMismatchDays),
		})
	}
	return snap
}

// MaxMismatchDays is the configured mismatch bound.
func (s *Session) MaxMismatchDays() int { return s.opts.MaxMismatchDays }
