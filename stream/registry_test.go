package stream

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/robostem/matchjump/backend/event"
)

func threeDayEvent() *event.Event {
	return &event.Event{
		ID:    101,
		SKU:   "RE-VRC-23-1234",
		Start: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestForEvent_OneSlotPerDay(t *testing.T) {
	r := ForEvent(Registry{}, threeDayEvent(), Options{})
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	for i, s := range r.Slots() {
		if !s.OnDay(i) {
			t.Errorf("slot %d bound to %v", i, s.DayIndex)
		}
		if s.DivisionID != nil {
			t.Errorf("slot %d has division %d", i, *s.DivisionID)
		}
		if s.State() != StateEmpty {
			t.Errorf("slot %d state = %s", i, s.State())
		}
	}
	if got := r.Slots()[1].Label; got != "Day 2 – Mar 2" {
		t.Errorf("label = %q", got)
	}
}

func TestForEvent_KeepsExistingRegistryForSameEvent(t *testing.T) {
	ev := threeDayEvent()
	r := ForEvent(Registry{}, ev, Options{})
	r, err := r.SetURL("stream-day-0", "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}

	again := ForEvent(r, ev, Options{})
	if s, _ := again.Slot("stream-day-0"); s.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("reload dropped URL: %+v", s)
	}

	other := *ev
	other.ID = 202
	fresh := ForEvent(r, &other, Options{})
	if s, _ := fresh.Slot("stream-day-0"); s.URL != "" {
		t.Errorf("different event kept URL: %+v", s)
	}
	if fresh.EventID() != 202 {
		t.Errorf("EventID = %d", fresh.EventID())
	}
}

func TestForEvent_PerDivision(t *testing.T) {
	ev := threeDayEvent()
	ev.End = ev.Start.AddDate(0, 0, 1)
	ev.Divisions = []event.Division{{ID: 1, Name: "Science"}, {ID: 2, Name: "Technology"}}

	r := ForEvent(Registry{}, ev, Options{PerDivision: true})
	if r.Len() != 4 {
		t.Fatalf("Len = %d, want 4", r.Len())
	}
	var ids []string
	for _, s := range r.Slots() {
		ids = append(ids, s.ID)
	}
	want := []string{"stream-div1-day-0", "stream-div1-day-1", "stream-div2-day-0", "stream-div2-day-1"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("slot ids mismatch (-want +got):\n%s", diff)
	}
	if !r.HasDivisionSlots() {
		t.Error("HasDivisionSlots = false")
	}

	flat := ForEvent(Registry{}, ev, Options{})
	if flat.Len() != 2 || flat.HasDivisionSlots() {
		t.Errorf("per-division off: Len=%d division=%v", flat.Len(), flat.HasDivisionSlots())
	}
}

func TestRemove_LastSlotIsNoop(t *testing.T) {
	r := New(1)
	if r.Len() != 1 {
		t.Fatalf("New with no slots has Len %d", r.Len())
	}
	only := r.Slots()[0]
	next, ok := r.Remove(only.ID)
	if ok || next.Len() != 1 {
		t.Errorf("removed last slot: ok=%v len=%d", ok, next.Len())
	}
}

func TestRemove_OnlyBackups(t *testing.T) {
	r := ForEvent(Registry{}, threeDayEvent(), Options{})
	if _, ok := r.Remove("stream-day-1"); ok {
		t.Error("day-bound slot removed")
	}

	r, backup := r.AddBackup()
	if !strings.HasPrefix(backup.ID, "stream-backup-") || backup.Label != BackupLabel || !backup.Backup() {
		t.Fatalf("unexpected backup slot %+v", backup)
	}
	if r.Len() != 4 {
		t.Fatalf("Len after AddBackup = %d", r.Len())
	}
	r, ok := r.Remove(backup.ID)
	if !ok || r.Len() != 3 {
		t.Errorf("Remove backup: ok=%v len=%d", ok, r.Len())
	}
	if _, ok := r.Remove("missing"); ok {
		t.Error("unknown id removed")
	}
}

func TestSetURL(t *testing.T) {
	anchor := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	base := ForEvent(Registry{}, threeDayEvent(), Options{})
	base, _ = base.SetURL("stream-day-0", "https://youtu.be/dQw4w9WgXcQ")
	base, _ = base.SetSync("stream-day-0", &anchor, SyncAuto)

	t.Run("valid url resets anchor", func(t *testing.T) {
		r, err := base.SetURL("stream-day-0", " https://vimeo.com/912345678 ")
		if err != nil {
			t.Fatal(err)
		}
		s, _ := r.Slot("stream-day-0")
		if s.Platform != Vimeo || s.VideoID != "912345678" || s.SyncAnchor != nil || s.Sync != SyncNone {
			t.Errorf("slot = %+v", s)
		}
		if s.State() != StateURLSet {
			t.Errorf("state = %s", s.State())
		}
	})

	t.Run("invalid url keeps raw text", func(t *testing.T) {
		r, err := base.SetURL("stream-day-0", "not a video")
		if !errors.Is(err, ErrUnrecognizedURL) {
			t.Fatalf("err = %v", err)
		}
		s, _ := r.Slot("stream-day-0")
		if s.URL != "not a video" || s.VideoID != "" || s.Platform != PlatformNone || s.SyncAnchor != nil {
			t.Errorf("slot = %+v", s)
		}
	})

	t.Run("empty url clears slot", func(t *testing.T) {
		r, err := base.SetURL("stream-day-0", "")
		if err != nil {
			t.Fatal(err)
		}
		s, _ := r.Slot("stream-day-0")
		if s.State() != StateEmpty || s.Key() != "" {
			t.Errorf("slot = %+v", s)
		}
	})

	t.Run("unknown slot", func(t *testing.T) {
		if _, err := base.SetURL("nope", "https://youtu.be/dQw4w9WgXcQ"); !errors.Is(err, ErrSlotNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("original is untouched", func(t *testing.T) {
		s, _ := base.Slot("stream-day-0")
		if s.SyncAnchor == nil || s.VideoID != "dQw4w9WgXcQ" {
			t.Errorf("base mutated: %+v", s)
		}
	})
}

func TestSwap_IsItsOwnInverse(t *testing.T) {
	a1 := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	r := ForEvent(Registry{}, threeDayEvent(), Options{})
	r, _ = r.SetURL("stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	r, _ = r.SetSync("stream-day-0", &a1, SyncAuto)
	r, _ = r.SetURL("stream-day-1", "https://vimeo.com/912345678")
	r = r.SetName("stream-day-1", "Day two feed")

	swapped, err := r.Swap("stream-day-0", "stream-day-1")
	if err != nil {
		t.Fatal(err)
	}
	d0, _ := swapped.Slot("stream-day-0")
	d1, _ := swapped.Slot("stream-day-1")
	if d0.VideoID != "912345678" || d0.SyncAnchor != nil || d0.Name != "Day two feed" {
		t.Errorf("day 0 after swap = %+v", d0)
	}
	if d1.VideoID != "AAAAAAAAAAA" || d1.SyncAnchor == nil || !d1.SyncAnchor.Equal(a1) || d1.Sync != SyncAuto {
		t.Errorf("day 1 after swap = %+v", d1)
	}
	if !d0.OnDay(0) || !d1.OnDay(1) || d0.Label != "Day 1 – Mar 1" {
		t.Errorf("swap moved day binding: %+v %+v", d0, d1)
	}

	back, err := swapped.Swap("stream-day-0", "stream-day-1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(r.Slots(), back.Slots()); diff != "" {
		t.Errorf("double swap differs (-want +got):\n%s", diff)
	}

	if _, err := r.Swap("stream-day-0", "missing"); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("swap with unknown slot err = %v", err)
	}
}

func TestSignature_IgnoresOrderAndUnparsed(t *testing.T) {
	r := ForEvent(Registry{}, threeDayEvent(), Options{})
	r, _ = r.SetURL("stream-day-0", "https://youtu.be/AAAAAAAAAAA")
	r, _ = r.SetURL("stream-day-1", "https://vimeo.com/912345678")
	r, _ = r.SetURL("stream-day-2", "garbage")

	swapped, _ := r.Swap("stream-day-0", "stream-day-1")
	if r.Signature() != swapped.Signature() {
		t.Errorf("signature changed on swap: %q vs %q", r.Signature(), swapped.Signature())
	}
	if want := "vimeo:912345678,youtube:AAAAAAAAAAA"; r.Signature() != want {
		t.Errorf("Signature = %q, want %q", r.Signature(), want)
	}
	changed, _ := r.SetURL("stream-day-2", "https://youtu.be/BBBBBBBBBBB")
	if changed.Signature() == r.Signature() {
		t.Error("signature did not change with a new video")
	}
}

func TestSetSync_TruncatesToMillisecond(t *testing.T) {
	r := ForEvent(Registry{}, threeDayEvent(), Options{})
	at := time.Date(2024, 3, 1, 14, 0, 0, 123456789, time.UTC)
	r, err := r.SetSync("stream-day-0", &at, SyncManual)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := r.Slot("stream-day-0")
	if s.SyncAnchor.Nanosecond() != 123000000 {
		t.Errorf("anchor nanos = %d", s.SyncAnchor.Nanosecond())
	}
}

func TestDayBound_SkipsBackups(t *testing.T) {
	r := ForEvent(Registry{}, threeDayEvent(), Options{})
	r, _ = r.AddBackup()
	got := r.DayBound()
	if len(got) != 3 {
		t.Fatalf("DayBound len = %d", len(got))
	}
	for i, s := range got {
		if !s.OnDay(i) {
			t.Errorf("position %d is %s", i, s.ID)
		}
	}
}

func TestAssign(t *testing.T) {
	r := ForEvent(Registry{}, threeDayEvent(), Options{})
	start := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	r, err := r.Assign("stream-day-0", Assignment{
		URL: "https://player.vimeo.com/video/1", Platform: Vimeo, VideoID: "1", Name: "Field 1", Anchor: &start,
	})
	if err != nil {
		t.Fatal(err)
	}
	s, _ := r.Slot("stream-day-0")
	if s.State() != StateAutoSynced || !s.SyncAnchor.Equal(start) || s.Label != "Day 1 – Mar 1" {
		t.Errorf("slot = %+v", s)
	}
}
