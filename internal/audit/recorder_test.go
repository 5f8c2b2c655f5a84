package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubStore collects appended events and can be told to fail.
type stubStore struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (s *stubStore) Append(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *stubStore) Query(context.Context, Filter, Page) (Result, error) {
	return Result{}, nil
}

func (s *stubStore) RecentForUser(context.Context, string, int) ([]Event, error) {
	return nil, nil
}

func (s *stubStore) RecentFailedLogins(context.Context, string, time.Time) ([]Event, error) {
	return nil, nil
}

func (s *stubStore) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRecordDefaultsAndPersists(t *testing.T) {
	store := &stubStore{}
	r := NewRecorder(store, WithWorkers(1))
	defer r.Close()

	r.Record(Event{
		EventType: TypeAuthentication,
		Action:    ActionLogin,
		Status:    StatusFailure,
	})
	r.Flush()

	events := store.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID == "" {
		t.Error("expected generated id")
	}
	if ev.Username != AnonymousUser {
		t.Errorf("expected anonymous username, got %q", ev.Username)
	}
	if ev.CreatedAt.IsZero() {
		t.Error("expected timestamp to be stamped")
	}
}

func TestRecordDefaultsStatusToSuccess(t *testing.T) {
	store := &stubStore{}
	r := NewRecorder(store, WithWorkers(1))
	defer r.Close()

	r.Record(Event{Username: "alice", EventType: TypeProfile, Action: ActionProfileView})
	r.Flush()

	events := store.snapshot()
	if len(events) != 1 || events[0].Status != StatusSuccess {
		t.Fatalf("expected SUCCESS default, got %+v", events)
	}
}

func TestRecordTruncatesDetails(t *testing.T) {
	store := &stubStore{}
	r := NewRecorder(store, WithWorkers(1))
	defer r.Close()

	r.Record(Event{
		Username:  "alice",
		EventType: TypeProfile,
		Action:    ActionProfileView,
		Details:   strings.Repeat("x", 1200),
	})
	r.Flush()

	events := store.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	details := events[0].Details
	if got := len([]rune(details)); got != 500 {
		t.Fatalf("expected 500 runes, got %d", got)
	}
	if !strings.HasSuffix(details, "...") {
		t.Fatal("truncated details must end with the marker")
	}
}

func TestTruncateDetailsBoundary(t *testing.T) {
	exact := strings.Repeat("a", 500)
	if TruncateDetails(exact) != exact {
		t.Fatal("exactly 500 runes must pass through untouched")
	}
	short := "hello"
	if TruncateDetails(short) != short {
		t.Fatal("short strings must pass through untouched")
	}
	long := strings.Repeat("я", 501)
	got := TruncateDetails(long)
	if len([]rune(got)) != 500 || !strings.HasSuffix(got, "...") {
		t.Fatalf("bad multibyte truncation: %d runes", len([]rune(got)))
	}
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	store := &stubStore{fail: errors.New("disk on fire")}
	r := NewRecorder(store, WithWorkers(1))
	defer r.Close()

	// Must not panic or surface the error anywhere.
	r.Record(Event{Username: "alice", EventType: TypeProfile, Action: ActionProfileView})
	r.Flush()

	if events := store.snapshot(); len(events) != 0 {
		t.Fatalf("expected no persisted events, got %d", len(events))
	}
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	store := &stubStore{}
	r := NewRecorder(store, WithWorkers(1))
	r.Close()

	// Must not panic on the closed queue.
	r.Record(Event{Username: "alice", EventType: TypeProfile, Action: ActionProfileView})

	if events := store.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events after close, got %d", len(events))
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	store := &stubStore{}
	r := NewRecorder(store, WithWorkers(1), WithQueueSize(64))
	for i := 0; i < 10; i++ {
		r.Record(Event{Username: "alice", EventType: TypeProfile, Action: ActionProfileView})
	}
	r.Close()

	if events := store.snapshot(); len(events) != 10 {
		t.Fatalf("expected all 10 events drained, got %d", len(events))
	}
}

// gatedStore blocks every Append until the gate is closed.
type gatedStore struct {
	stubStore
	gate chan struct{}
}

func (s *gatedStore) Append(ctx context.Context, ev Event) error {
	<-s.gate
	return s.stubStore.Append(ctx, ev)
}

func TestRecordNotBlockedByPendingFlush(t *testing.T) {
	store := &gatedStore{gate: make(chan struct{})}
	r := NewRecorder(store, WithWorkers(1), WithQueueSize(1))

	// One event for the worker to stall on, one to fill the queue.
	r.Record(Event{Username: "alice", EventType: TypeProfile, Action: ActionProfileView})
	r.Record(Event{Username: "alice", EventType: TypeProfile, Action: ActionProfileView})

	flushed := make(chan struct{})
	go func() {
		r.Flush()
		close(flushed)
	}()

	// Record must keep its non-blocking drop path even while Flush waits on
	// the saturated queue.
	recorded := make(chan struct{})
	go func() {
		r.Record(Event{Username: "alice", EventType: TypeProfile, Action: ActionProfileView})
		close(recorded)
	}()
	select {
	case <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked behind a pending Flush")
	}

	close(store.gate)
	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("Flush did not complete after the store unblocked")
	}
	r.Close()
}

func TestRecentForUserCapsLimit(t *testing.T) {
	capturing := &limitCapture{}
	rc := NewRecorder(capturing, WithWorkers(1))
	defer rc.Close()

	for _, limit := range []int{0, -5, 10, 50, 500} {
		if _, err := rc.RecentForUser(context.Background(), "alice", limit); err != nil {
			t.Fatalf("RecentForUser: %v", err)
		}
	}
	want := []int{50, 50, 10, 50, 50}
	for i, got := range capturing.limits {
		if got != want[i] {
			t.Errorf("limit case %d: got %d, want %d", i, got, want[i])
		}
	}
}

type limitCapture struct {
	stubStore
	limits []int
}

func (s *limitCapture) RecentForUser(_ context.Context, _ string, limit int) ([]Event, error) {
	s.limits = append(s.limits, limit)
	return nil, nil
}

func TestPageNormalize(t *testing.T) {
	cases := []struct {
		in   Page
		want Page
	}{
		{Page{}, Page{Number: 0, Size: 20}},
		{Page{Number: -3, Size: -1}, Page{Number: 0, Size: 20}},
		{Page{Number: 2, Size: 500}, Page{Number: 2, Size: 100}},
		{Page{Number: 1, Size: 25}, Page{Number: 1, Size: 25}},
	}
	for i, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Errorf("case %d: got %+v, want %+v", i, got, tc.want)
		}
	}
}
