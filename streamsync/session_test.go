package streamsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/resolve"
	"github.com/robostem/matchjump/backend/stream"
)

type fakeSource struct {
	mu      sync.Mutex
	results map[string]Metadata
	err     error
	calls   atomic.Int32
	gate    chan struct{} // when non-nil, Lookup blocks until closed
	entered chan struct{}
}

func (f *fakeSource) Lookup(ctx context.Context, p stream.Platform, id string) (Metadata, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Metadata{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	md, ok := f.results[string(p)+":"+id]
	if !ok {
		return Metadata{Status: StatusUnavailable}, nil
	}
	return md, nil
}

type fakePlayer struct {
	offset float64
	seeks  []float64
	played int
}

func (p *fakePlayer) SeekTo(sec float64) error        { p.seeks = append(p.seeks, sec); return nil }
func (p *fakePlayer) Play() error                     { p.played++; return nil }
func (p *fakePlayer) Pause() error                    { return nil }
func (p *fakePlayer) CurrentOffset() (float64, error) { return p.offset, nil }

type fakeDiscoverer struct {
	found []Discovered
	err   error
	limit int
}

func (d *fakeDiscoverer) DiscoverEvent(_ context.Context, _ string, limit int) ([]Discovered, error) {
	d.limit = limit
	return d.found, d.err
}

func at(day, h, m, s int) time.Time {
	return time.Date(2024, time.March, day, h, m, s, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func newSession(t *testing.T, src MetadataSource) *Session {
	t.Helper()
	ev := &event.Event{ID: 1, SKU: "RE-VRC-23-1234", Start: at(1, 0, 0, 0), End: at(3, 0, 0, 0)}
	reg := stream.ForEvent(stream.Registry{}, ev, stream.Options{})
	return New(ev, reg, Options{Metadata: src})
}

func mustSetURL(t *testing.T, s *Session, slot, url string) {
	t.Helper()
	if err := s.SetURL(context.Background(), slot, url); err != nil {
		t.Fatalf("SetURL(%s): %v", slot, err)
	}
}

func slotOf(t *testing.T, s *Session, id string) stream.Slot {
	t.Helper()
	slot, ok := s.Registry().Slot(id)
	if !ok {
		t.Fatalf("slot %s missing", id)
	}
	return slot
}

func TestAutoDetect_Started(t *testing.T) {
	src := &fakeSource{results: map[string]Metadata{
		"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(1, 8, 0, 0)), Name: "Day 1 Livestream"},
	}}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")

	out, err := s.AutoDetect(context.Background(), "stream-day-0")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusStarted || out.Anchor == nil || !out.Anchor.Equal(at(1, 8, 0, 0)) {
		t.Errorf("outcome = %+v", out)
	}
	slot := slotOf(t, s, "stream-day-0")
	if slot.State() != stream.StateAutoSynced || slot.Name != "Day 1 Livestream" {
		t.Errorf("slot = %+v", slot)
	}
}

func TestAutoDetect_ScheduledAndUnavailable(t *testing.T) {
	src := &fakeSource{results: map[string]Metadata{
		"youtube:SSSSSSSSSSS": {Status: StatusScheduled, ScheduledStart: ptr(at(2, 9, 0, 0))},
	}}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/SSSSSSSSSSS")
	mustSetURL(t, s, "stream-day-1", "https://vimeo.com/912345678")

	out, err := s.AutoDetect(context.Background(), "stream-day-0")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusScheduled || out.Anchor != nil {
		t.Errorf("scheduled outcome = %+v", out)
	}
	if slotOf(t, s, "stream-day-0").State() != stream.StateScheduledWait {
		t.Errorf("state = %s", slotOf(t, s, "stream-day-0").State())
	}

	out, err = s.AutoDetect(context.Background(), "stream-day-1")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusUnavailable || out.Message != MessageUnavailable {
		t.Errorf("unavailable outcome = %+v", out)
	}

	snap := s.Snapshot()
	if snap.Slots[1].State != stream.StateSyncUnknown || snap.Slots[1].Message != MessageUnavailable {
		t.Errorf("snapshot slot = %+v", snap.Slots[1])
	}
	if snap.Slots[0].Message == "" {
		t.Error("scheduled slot has no message")
	}
}

func TestAutoDetect_LookupFailureDegrades(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("youtube: quota exceeded: %w", ErrUnavailable)}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	mustSetURL(t, s, "stream-day-1", "https://youtu.be/BBBBBBBBBBB")

	out, err := s.AutoDetect(context.Background(), "stream-day-0")
	if err != nil {
		t.Fatalf("lookup failure surfaced as error: %v", err)
	}
	if out.Status != StatusUnavailable || out.Message != MessageLookupFailed {
		t.Errorf("outcome = %+v", out)
	}
	// Other slots are untouched.
	if slotOf(t, s, "stream-day-1").Sync != stream.SyncNone {
		t.Error("unrelated slot changed")
	}
}

func TestAutoDetect_DedupsConcurrentCalls(t *testing.T) {
	src := &fakeSource{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 4),
		results: map[string]Metadata{
			"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(1, 8, 0, 0))},
		},
	}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")

	done := make(chan error, 1)
	go func() {
		_, err := s.AutoDetect(context.Background(), "stream-day-0")
		done <- err
	}()
	<-src.entered

	if _, err := s.AutoDetect(context.Background(), "stream-day-0"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("second call err = %v, want ErrAlreadyAttempted", err)
	}
	close(src.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, err := s.AutoDetect(context.Background(), "stream-day-0"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("call after resolution err = %v", err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("collaborator called %d times, want 1", n)
	}
}

func TestAutoDetect_AttemptedClearedWhenVideosChange(t *testing.T) {
	src := &fakeSource{}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	if _, err := s.AutoDetect(context.Background(), "stream-day-0"); err != nil {
		t.Fatal(err)
	}

	// Swapping keeps the same video set: still attempted.
	if err := s.Swap("stream-day-0", "stream-day-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AutoDetect(context.Background(), "stream-day-1"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("after swap err = %v", err)
	}

	mustSetURL(t, s, "stream-day-2", "https://youtu.be/BBBBBBBBBBB")
	if _, err := s.AutoDetect(context.Background(), "stream-day-1"); err != nil {
		t.Errorf("after video set change err = %v", err)
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestAutoDetect_StaleResultDropped(t *testing.T) {
	src := &fakeSource{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
		results: map[string]Metadata{
			"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(1, 8, 0, 0))},
		},
	}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")

	done := make(chan Outcome, 1)
	go func() {
		out, _ := s.AutoDetect(context.Background(), "stream-day-0")
		done <- out
	}()
	<-src.entered
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/CCCCCCCCCCC")
	close(src.gate)

	out := <-done
	if !out.Stale {
		t.Errorf("outcome = %+v, want stale", out)
	}
	if slot := slotOf(t, s, "stream-day-0"); slot.SyncAnchor != nil || slot.VideoID != "CCCCCCCCCCC" {
		t.Errorf("stale result applied: %+v", slot)
	}
}

func TestAutoDetect_LateResultKeepsManualAnchor(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{name: "started", src: &fakeSource{results: map[string]Metadata{
			"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(1, 8, 0, 0)), Name: "Day 1"},
		}}},
		{name: "unavailable", src: &fakeSource{}},
		{name: "lookup failed", src: &fakeSource{err: fmt.Errorf("quota: %w", ErrUnavailable)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.src.gate = make(chan struct{})
			tt.src.entered = make(chan struct{}, 1)
			s := newSession(t, tt.src)
			mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")

			done := make(chan Outcome, 1)
			go func() {
				out, _ := s.AutoDetect(context.Background(), "stream-day-0")
				done <- out
			}()
			<-tt.src.entered
			if _, err := s.ManualSync("stream-day-0", event.Match{Start: ptr(at(1, 14, 5, 0))}, 300); err != nil {
				t.Fatal(err)
			}
			close(tt.src.gate)

			if out := <-done; !out.Stale {
				t.Errorf("outcome = %+v, want stale", out)
			}
			slot := slotOf(t, s, "stream-day-0")
			if slot.Sync != stream.SyncManual || slot.SyncAnchor == nil || !slot.SyncAnchor.Equal(at(1, 14, 0, 0)) {
				t.Errorf("manual anchor lost: anchor=%v sync=%q", slot.SyncAnchor, slot.Sync)
			}
			if msg := s.Snapshot().Slots[0].Message; msg != "" {
				t.Errorf("message = %q on manually synced slot", msg)
			}
		})
	}
}

func TestAutoDetect_SharedVideoAppliedToEverySlot(t *testing.T) {
	src := &fakeSource{results: map[string]Metadata{
		"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(1, 8, 0, 0)), Name: "Day 1"},
	}}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	backup := s.AddBackup()
	mustSetURL(t, s, backup.ID, "https://www.youtube.com/watch?v=AAAAAAAAAAA")
	manual := s.AddBackup()
	mustSetURL(t, s, manual.ID, "https://youtu.be/AAAAAAAAAAA")
	if _, err := s.ManualSync(manual.ID, event.Match{Start: ptr(at(1, 9, 0, 0))}, 0); err != nil {
		t.Fatal(err)
	}

	outs := s.AutoDetectAll(context.Background())
	if len(outs) != 1 {
		t.Fatalf("outcomes = %+v", outs)
	}
	for _, id := range []string{"stream-day-0", backup.ID} {
		slot := slotOf(t, s, id)
		if slot.Sync != stream.SyncAuto || slot.SyncAnchor == nil || !slot.SyncAnchor.Equal(at(1, 8, 0, 0)) || slot.Name != "Day 1" {
			t.Errorf("%s: anchor=%v sync=%q name=%q", id, slot.SyncAnchor, slot.Sync, slot.Name)
		}
	}
	if slot := slotOf(t, s, manual.ID); slot.Sync != stream.SyncManual || !slot.SyncAnchor.Equal(at(1, 9, 0, 0)) {
		t.Errorf("manual slot overwritten: %+v", slot)
	}
	if _, err := s.AutoDetect(context.Background(), backup.ID); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("retry err = %v", err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestAutoDetect_Errors(t *testing.T) {
	s := newSession(t, &fakeSource{})
	if _, err := s.AutoDetect(context.Background(), "nope"); !errors.Is(err, stream.ErrSlotNotFound) {
		t.Errorf("unknown slot err = %v", err)
	}
	if _, err := s.AutoDetect(context.Background(), "stream-day-0"); !errors.Is(err, ErrNoVideo) {
		t.Errorf("empty slot err = %v", err)
	}
}

func TestAutoDetectAll(t *testing.T) {
	src := &fakeSource{results: map[string]Metadata{
		"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(1, 8, 0, 0))},
		"youtube:BBBBBBBBBBB": {Status: StatusStarted, ActualStart: ptr(at(2, 8, 0, 0))},
	}}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	mustSetURL(t, s, "stream-day-1", "https://youtu.be/BBBBBBBBBBB")
	slot := s.AddBackup()
	mustSetURL(t, s, slot.ID, "https://www.youtube.com/watch?v=AAAAAAAAAAA")

	outs := s.AutoDetectAll(context.Background())
	if len(outs) != 2 {
		t.Fatalf("outcomes = %+v", outs)
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2 (shared video looked up once)", n)
	}
	if again := s.AutoDetectAll(context.Background()); len(again) != 0 {
		t.Errorf("second pass re-detected: %+v", again)
	}
}

func TestManualSync_OffsetZeroForSameMatch(t *testing.T) {
	s := newSession(t, &fakeSource{})
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	m := event.Match{ID: 9, Start: ptr(at(1, 14, 5, 0))}

	slot, err := s.ManualSync("stream-day-0", m, 300)
	if err != nil {
		t.Fatal(err)
	}
	if !slot.SyncAnchor.Equal(at(1, 14, 0, 0)) || slot.State() != stream.StateManuallySynced {
		t.Errorf("slot = %+v", slot)
	}

	p := &fakePlayer{}
	s.RegisterPlayer("stream-day-0", p)
	res, err := s.Seek(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if res.Offset != 300 || len(p.seeks) != 1 || p.seeks[0] != 300 || p.played != 1 {
		t.Errorf("seek = %+v player = %+v", res, p)
	}

	// Re-anchoring at the observed offset makes that moment offset zero.
	slot, err = s.ManualSync("stream-day-0", m, 0)
	if err != nil {
		t.Fatal(err)
	}
	off, err := resolve.ToPlaybackOffset(m, slot)
	if err != nil || off != 0 {
		t.Errorf("offset = %v, %v; want 0", off, err)
	}

	if _, err := s.ManualSync("stream-day-0", event.Match{}, 10); !errors.Is(err, resolve.ErrNotPlayed) {
		t.Errorf("unplayed match err = %v", err)
	}
}

func TestManualSyncFromPlayer(t *testing.T) {
	s := newSession(t, &fakeSource{})
	m := event.Match{Start: ptr(at(2, 10, 0, 0))}
	if _, err := s.ManualSyncFromPlayer("stream-day-1", m); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("no player err = %v", err)
	}
	s.RegisterPlayer("stream-day-1", &fakePlayer{offset: 60})
	slot, err := s.ManualSyncFromPlayer("stream-day-1", m)
	if err != nil {
		t.Fatal(err)
	}
	if !slot.SyncAnchor.Equal(at(2, 9, 59, 0)) {
		t.Errorf("anchor = %v", slot.SyncAnchor)
	}
}

func TestNudge(t *testing.T) {
	s := newSession(t, &fakeSource{})
	if _, err := s.Nudge("stream-day-0", 5); !errors.Is(err, resolve.ErrNotSynced) {
		t.Errorf("nudge without anchor err = %v", err)
	}
	m := event.Match{Start: ptr(at(1, 10, 0, 0))}
	if _, err := s.ManualSync("stream-day-0", m, 0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Nudge("stream-day-0", -2); err != nil {
			t.Fatal(err)
		}
	}
	slot, err := s.Nudge("stream-day-0", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if want := at(1, 10, 0, 0).Add(-5500 * time.Millisecond); !slot.SyncAnchor.Equal(want) {
		t.Errorf("anchor = %v, want %v", slot.SyncAnchor, want)
	}
}

func TestSeek_RejectsBeforeStreamStart(t *testing.T) {
	s := newSession(t, &fakeSource{})
	m := event.Match{Start: ptr(at(1, 14, 0, 0))}
	if _, err := s.ManualSync("stream-day-0", m, 0); err != nil {
		t.Fatal(err)
	}
	p := &fakePlayer{}
	s.RegisterPlayer("stream-day-0", p)

	early := event.Match{Start: ptr(at(1, 13, 59, 50))}
	res, err := s.Seek(context.Background(), early)
	if !errors.Is(err, resolve.ErrBeforeStreamStart) {
		t.Fatalf("err = %v", err)
	}
	if res.Offset != -10 {
		t.Errorf("offset = %v, want -10", res.Offset)
	}
	if len(p.seeks) != 0 {
		t.Error("player was seeked")
	}
	if Classify(err) != ErrorClassPrecondition {
		t.Errorf("class = %v", Classify(err))
	}
}

func TestSeek_NoPlayer(t *testing.T) {
	s := newSession(t, &fakeSource{})
	m := event.Match{Start: ptr(at(1, 14, 0, 0))}
	if _, err := s.ManualSync("stream-day-0", m, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Seek(context.Background(), m); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("err = %v", err)
	}
	if _, err := s.Seek(context.Background(), event.Match{}); !errors.Is(err, resolve.ErrNotPlayed) {
		t.Errorf("unplayed err = %v", err)
	}
}

func TestRepair(t *testing.T) {
	src := &fakeSource{results: map[string]Metadata{
		"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(2, 10, 0, 0))},
		"youtube:BBBBBBBBBBB": {Status: StatusStarted, ActualStart: ptr(at(1, 9, 0, 0))},
	}}
	s := newSession(t, src)
	mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	mustSetURL(t, s, "stream-day-1", "https://youtu.be/BBBBBBBBBBB")
	s.AutoDetectAll(context.Background())

	snap := s.Snapshot()
	mm := snap.Slots[0].Mismatch
	if mm == nil || mm.ExpectedDay != 1 || mm.ActualDay != 2 || !mm.CanSwap {
		t.Fatalf("mismatch = %+v", mm)
	}

	repaired, err := s.Repair("stream-day-0")
	if err != nil || repaired == nil {
		t.Fatalf("Repair = %+v, %v", repaired, err)
	}
	if got := slotOf(t, s, "stream-day-0").VideoID; got != "BBBBBBBBBBB" {
		t.Errorf("day 0 video = %s", got)
	}
	for _, v := range s.Snapshot().Slots {
		if v.Mismatch != nil {
			t.Errorf("mismatch left on %s: %+v", v.ID, v.Mismatch)
		}
	}
	if m, err := s.Repair("stream-day-0"); m != nil || err != nil {
		t.Errorf("second repair = %+v, %v", m, err)
	}
}

func TestRepair_ConcurrentSetURL(t *testing.T) {
	src := &fakeSource{results: map[string]Metadata{
		"youtube:AAAAAAAAAAA": {Status: StatusStarted, ActualStart: ptr(at(2, 10, 0, 0))},
		"youtube:BBBBBBBBBBB": {Status: StatusStarted, ActualStart: ptr(at(1, 9, 0, 0))},
	}}
	for i := 0; i < 200; i++ {
		s := newSession(t, src)
		mustSetURL(t, s, "stream-day-0", "https://youtu.be/AAAAAAAAAAA")
		mustSetURL(t, s, "stream-day-1", "https://youtu.be/BBBBBBBBBBB")
		s.AutoDetectAll(context.Background())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Repair("stream-day-0")
		}()
		go func() {
			defer wg.Done()
			_ = s.SetURL(context.Background(), "stream-day-0", "https://youtu.be/CCCCCCCCCCC")
		}()
		wg.Wait()

		// Either order leaves the new video on day 0.
		if got := slotOf(t, s, "stream-day-0").VideoID; got != "CCCCCCCCCCC" {
			t.Fatalf("iteration %d: day 0 video = %s, day 1 video = %s", i, got, slotOf(t, s, "stream-day-1").VideoID)
		}
	}
}

func TestSetURL_VimeoEventDiscovery(t *testing.T) {
	d := &fakeDiscoverer{found: []Discovered{
		{Platform: stream.Vimeo, VideoID: "100000001", URL: "https://player.vimeo.com/video/100000001", Start: at(1, 8, 0, 0)},
		{Platform: stream.Vimeo, VideoID: "100000002", URL: "https://player.vimeo.com/video/100000002", Start: at(2, 8, 0, 0)},
	}}
	ev := &event.Event{ID: 1, Start: at(1, 0, 0, 0), End: at(3, 0, 0, 0)}
	s := New(ev, stream.ForEvent(stream.Registry{}, ev, stream.Options{}), Options{Metadata: &fakeSource{}, Discoverer: d})
	s.AddBackup()

	if err := s.SetURL(context.Background(), "stream-day-0", "https://vimeo.com/event/4012345"); err != nil {
		t.Fatal(err)
	}
	if d.limit != 3 {
		t.Errorf("discovery limit = %d, want 3 day slots", d.limit)
	}
	for i, want := range []string{"100000001", "100000002", ""} {
		slot := slotOf(t, s, fmt.Sprintf("stream-day-%d", i))
		if slot.VideoID != want {
			t.Errorf("day %d video = %q, want %q", i, slot.VideoID, want)
		}
	}
	if slot := slotOf(t, s, "stream-day-1"); slot.State() != stream.StateAutoSynced {
		t.Errorf("discovered slot state = %s", slot.State())
	}
	if _, err := s.AutoDetect(context.Background(), "stream-day-0"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("discovered video re-detected: %v", err)
	}
}

func TestSetURL_VimeoEventEmpty(t *testing.T) {
	ev := &event.Event{ID: 1, Start: at(1, 0, 0, 0), End: at(1, 0, 0, 0)}
	s := New(ev, stream.ForEvent(stream.Registry{}, ev, stream.Options{}), Options{Discoverer: &fakeDiscoverer{}})
	err := s.SetURL(context.Background(), "stream-day-0", "https://vimeo.com/event/1")
	if !errors.Is(err, ErrNothingDiscovered) {
		t.Fatalf("err = %v", err)
	}
	if msg := s.Snapshot().Slots[0].Message; msg != MessageNoArchives {
		t.Errorf("message = %q", msg)
	}

	noDiscovery := New(ev, stream.ForEvent(stream.Registry{}, ev, stream.Options{}), Options{})
	err = noDiscovery.SetURL(context.Background(), "stream-day-0", "https://vimeo.com/event/1")
	if Classify(err) != ErrorClassInput {
		t.Errorf("class = %v for %v", Classify(err), err)
	}
}

func TestSetURL_InvalidKeepsRaw(t *testing.T) {
	s := newSession(t, &fakeSource{})
	err := s.SetURL(context.Background(), "stream-day-0", "hello")
	if !errors.Is(err, stream.ErrUnrecognizedURL) {
		t.Fatalf("err = %v", err)
	}
	if slot := slotOf(t, s, "stream-day-0"); slot.URL != "hello" || slot.VideoID != "" {
		t.Errorf("slot = %+v", slot)
	}
}

func TestRemove(t *testing.T) {
	s := newSession(t, &fakeSource{})
	b := s.AddBackup()
	if s.Remove("stream-day-0") {
		t.Error("removed day slot")
	}
	if !s.Remove(b.ID) {
		t.Error("backup not removed")
	}
	if s.Registry().Len() != 3 {
		t.Errorf("Len = %d", s.Registry().Len())
	}
}

func TestUpdate_AppliesAgainstLatest(t *testing.T) {
	s := newSession(t, &fakeSource{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(r stream.Registry) stream.Registry {
				next, _ := r.AddBackup()
				return next
			})
		}()
	}
	wg.Wait()
	if got := s.Registry().Len(); got != 23 {
		t.Errorf("Len = %d, want 23", got)
	}
}
