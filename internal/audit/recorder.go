package audit

import (
	"context"
	"sync"
	"time"

	"keyward.io/internal/ids"
	"keyward.io/internal/obs"
)

const (
	defaultQueueSize = 1024
	defaultWorkers   = 2
	recentLimitCap   = 50
	persistTimeout   = 5 * time.Second
)

// Recorder accepts events on a bounded queue and persists them from
// background workers. Record never blocks the caller and never surfaces
// persistence failures: when the queue is full the event is dropped and
// counted, when the store errors the event is logged and counted. Reads go
// straight to the store.
type Recorder struct {
	store   Store
	queue   chan queueItem
	workers int
	now     func() time.Time

	// mu guards closed and excludes Close from in-flight queue sends: senders
	// hold the read side, Close takes the write side before closing the queue.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type queueItem struct {
	ev Event
	// flush, when non-nil, marks a barrier: the worker closes it instead of
	// persisting anything.
	flush chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithQueueSize sets the bounded queue capacity.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan queueItem, n)
		}
	}
}

// WithWorkers sets the number of persistence workers.
func WithWorkers(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRecorderClock overrides the time source (useful for tests).
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder starts the background workers and returns the recorder. Call
// Close during shutdown to drain the queue.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		queue:   make(chan queueItem, defaultQueueSize),
		workers: defaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go r.worker()
	}
	return r
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for item := range r.queue {
		if item.flush != nil {
			close(item.flush)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := r.store.Append(ctx, item.ev)
		cancel()
		if err != nil {
			obs.AuditPersistFailed()
			obs.Log(map[string]any{
				"level":      "error",
				"msg":        "audit_persist_failed",
				"event_type": item.ev.EventType,
				"action":     item.ev.Action,
				"username":   item.ev.Username,
				"error":      err.Error(),
			})
		}
	}
}

// Record enqueues an event for asynchronous persistence. Missing fields are
// defaulted, the detail string is bounded, and saturation drops the event
// rather than blocking the request path.
func (r *Recorder) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if ev.Username == "" {
		ev.Username = AnonymousUser
	}
	if ev.Status == "" {
		ev.Status = StatusSuccess
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	ev.Details = TruncateDetails(ev.Details)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		obs.AuditDropped()
		obs.Log(map[string]any{
			"level":  "warn",
			"msg":    "audit_dropped_after_close",
			"action": ev.Action,
		})
		return
	}

	select {
	case r.queue <- queueItem{ev: ev}:
		obs.AuditRecorded(ev.EventType, ev.Status)
	default:
		obs.AuditDropped()
		obs.Log(map[string]any{
			"level":  "warn",
			"msg":    "audit_queue_full",
			"action": ev.Action,
		})
	}
}

// Flush blocks until every event enqueued before the call has been handed to
// the store. With a single worker this is an exact barrier; with several it
// covers the queue but not in-flight appends on other workers. The barrier
// send holds only the read lock, so concurrent Record calls keep their
// non-blocking drop path even while Flush waits on a full queue.
func (r *Recorder) Flush() {
	done := make(chan struct{})
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.queue <- queueItem{flush: done}
	r.mu.RUnlock()
	<-done
}

// Close stops accepting events, drains the queue, and waits for the workers.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

// Query returns a filtered page of events, newest first.
func (r *Recorder) Query(ctx context.Context, f Filter, page Page) (Result, error) {
	return r.store.Query(ctx, f, page.Normalize())
}

// RecentForUser returns up to limit recent events for the user, newest first.
// The limit is capped at 50.
func (r *Recorder) RecentForUser(ctx context.Context, username string, limit int) ([]Event, error) {
	if limit <= 0 || limit > recentLimitCap {
		limit = recentLimitCap
	}
	return r.store.RecentForUser(ctx, username, limit)
}

// RecentFailedLogins returns the user's failed login attempts since the given
// instant.
func (r *Recorder) RecentFailedLogins(ctx context.Context, username string, since time.Time) ([]Event, error) {
	return r.store.RecentFailedLogins(ctx, username, since)
}
