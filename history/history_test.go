package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/robostem/matchjump/backend/event"
	"github.com/robostem/matchjump/backend/stream"
	"github.com/robostem/matchjump/backend/testutil"
)

func ptr[T any](v T) *T { return &v }

func sampleEvent() *event.Event {
	loc := time.FixedZone("CDT", -5*3600)
	return &event.Event{
		ID:    51234,
		SKU:   "RE-VRC-24-5123",
		Name:  "Signature Event",
		Start: time.Date(2024, 3, 1, 8, 0, 0, 0, loc),
		End:   time.Date(2024, 3, 2, 18, 0, 0, 0, loc),
	}
}

func TestFromSession(t *testing.T) {
	ev := sampleEvent()
	anchor := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	reg := stream.New(ev.ID,
		stream.Slot{ID: "stream-day-0", DayIndex: ptr(0), Label: "Day 1", URL: "https://youtu.be/abc", Platform: stream.YouTube, SyncAnchor: &anchor},
		stream.Slot{ID: "stream-day-1", DayIndex: ptr(1), Label: "Day 2"},
	)
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	e := FromSession(ev, reg, now)
	if e.EventID != ev.ID || e.SKU != ev.SKU || !e.ViewedAt.Equal(now) {
		t.Errorf("entry header = %+v", e)
	}
	want := []Stream{{ID: "stream-day-0", DayIndex: ptr(0), Label: "Day 1", URL: "https://youtu.be/abc", Platform: stream.YouTube, SyncAnchor: &anchor}}
	if diff := cmp.Diff(want, e.Streams); diff != "" {
		t.Errorf("streams mismatch (-want +got):\n%s", diff)
	}
}

func TestWarnings(t *testing.T) {
	ev := sampleEvent()
	e := FromSession(ev, stream.New(ev.ID), time.Now())
	e.Streams = []Stream{
		// 2024-03-01 09:00 local, inside
		{URL: "a", SyncAnchor: ptr(time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC))},
		// 2024-02-28 local, before
		{URL: "b", SyncAnchor: ptr(time.Date(2024, 2, 28, 20, 0, 0, 0, time.UTC))},
		{URL: "c"},
		// 2024-03-03 01:00 UTC is still 2024-03-02 local, inside
		{URL: "d", SyncAnchor: ptr(time.Date(2024, 3, 3, 1, 0, 0, 0, time.UTC))},
		// 2024-03-04 local, after
		{URL: "e", SyncAnchor: ptr(time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))},
	}

	want := []Warning{
		{StreamIndex: 1, StreamDate: "2024-02-28", MatchedDay: -2, BeforeEvent: true},
		{StreamIndex: 4, StreamDate: "2024-03-04", MatchedDay: 3, AfterEvent: true},
	}
	if diff := cmp.Diff(want, e.Warnings()); diff != "" {
		t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id int, viewed time.Time) Entry {
		return Entry{
			EventID:  id,
			SKU:      "RE-VRC-24-0000",
			Name:     "Event",
			Start:    base,
			End:      base.Add(24 * time.Hour),
			ViewedAt: viewed,
			Streams:  []Stream{{ID: "stream-day-0", URL: "https://youtu.be/x", DayIndex: ptr(0)}},
		}
	}

	for i := 1; i <= 4; i++ {
		if err := s.Record(ctx, mk(i, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}
	// re-viewing moves an event to the front
	if err := s.Record(ctx, mk(1, base.Add(10*time.Hour))); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var ids []int
	for _, e := range list {
		ids = append(ids, e.EventID)
	}
	if diff := cmp.Diff([]int{1, 4, 3, 2}, ids); diff != "" {
		t.Errorf("List order mismatch (-want +got):\n%s", diff)
	}

	got, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Streams) != 1 || got.Streams[0].DayIndex == nil || *got.Streams[0].DayIndex != 0 {
		t.Errorf("Get streams = %+v", got.Streams)
	}

	if err := s.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := s.Delete(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v", err)
	}

	// entries 1, 4, 2 remain; 2 is older than the cutoff, then keep 1
	n, err := s.Prune(ctx, base.Add(3*time.Hour), 1)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune removed %d, want 2", n)
	}
	list, _ = s.List(ctx)
	if len(list) != 1 || list[0].EventID != 1 {
		t.Errorf("after prune = %+v", list)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestPostgresStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	exerciseStore(t, &Postgres{DB: db})
}

func TestRunRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = s.Record(ctx, Entry{EventID: i, ViewedAt: now.Add(-time.Duration(i) * 24 * time.Hour)})
	}

	tests := []struct {
		name   string
		policy RetentionPolicy
		want   int
	}{
		{name: "disabled", policy: RetentionPolicy{}, want: 0},
		{name: "by age", policy: RetentionPolicy{MaxAge: 72 * time.Hour}, want: 1},
		{name: "by count", policy: RetentionPolicy{MaxEntries: 2}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := RunRetention(ctx, s, tt.policy, now)
			if err != nil {
				t.Fatalf("RunRetention() error = %v", err)
			}
			if n != tt.want {
				t.Errorf("removed = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestStartRetentionJob_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemory()
	_ = s.Record(ctx, Entry{EventID: 1, ViewedAt: time.Now().Add(-48 * time.Hour)})

	done := make(chan struct{})
	go func() {
		StartRetentionJob(ctx, s, RetentionPolicy{MaxAge: time.Hour, Interval: time.Hour})
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for {
		list, _ := s.List(context.Background())
		if len(list) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial prune did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retention job did not stop")
	}
}

func TestStartRetentionJob_RefreshOverridesPolicy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemory()
	now := time.Now()
	for i := 0; i < 3; i++ {
		_ = s.Record(ctx, Entry{EventID: i, ViewedAt: now.Add(-time.Duration(i) * time.Minute)})
	}

	done := make(chan struct{})
	go func() {
		StartRetentionJob(ctx, s, RetentionPolicy{
			Interval: time.Hour,
			Refresh: func(context.Context, RetentionPolicy) RetentionPolicy {
				return RetentionPolicy{MaxEntries: 1}
			},
		})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		list, _ := s.List(context.Background())
		if len(list) == 1 {
			if list[0].EventID != 0 {
				t.Errorf("kept %d, want the newest entry", list[0].EventID)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("refreshed policy was not applied")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
