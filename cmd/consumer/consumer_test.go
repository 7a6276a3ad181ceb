package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type scriptedReader struct {
	mu        sync.Mutex
	steps     []func() (kafka.Message, error)
	cancel    context.CancelFunc
	committed []int64
	offset    int64
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	m, err := step()
	if err == nil {
		r.offset++
		m.Offset = r.offset
	}
	return m, err
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func msg(value string) func() (kafka.Message, error) {
	return func() (kafka.Message, error) { return kafka.Message{Value: []byte(value)}, nil }
}

// flakyStore fails the first failures appends.
type flakyStore struct {
	*activity.MemoryStore
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyStore) Append(ctx context.Context, e activity.Event) (activity.Event, error) {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failures
	s.mu.Unlock()
	if fail {
		return activity.Event{}, errors.New("connection refused")
	}
	return s.MemoryStore.Append(ctx, e)
}

func newHandler() (*handler, *activity.MemoryStore) {
	dir := ride.NewMemoryDirectory()
	dir.PutRide(ride.Ride{ID: "ride-1", Status: ride.StatusPlanned})
	store := activity.NewMemoryStore()
	return &handler{dir: dir, feed: activity.NewFeed(store, activity.FeedOptions{}), log: zap.NewNop()}, store
}

func TestDecode(t *testing.T) {
	ev, err := decode([]byte(`{"ride_id": "ride-1", "activity_type": "RIDE_STARTED", "user_id": "user-1", "message": "Ride started", "created_at": "2026-03-01T06:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.RideID != "ride-1" || ev.Type != activity.TypeRideStarted || ev.UserID != "user-1" || ev.CreatedAt.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}

	cases := []struct {
		value string
		want  error
	}{
		{`not json`, apperr.InvalidPayload},
		{`{"activity_type": "ride_started"}`, apperr.InvalidPayload},
		{`{"ride_id": "ride-1"}`, apperr.InvalidPayload},
		{`{"ride_id": "ride-1", "activity_type": "sos_alert"}`, apperr.InvalidActivityType},
		{`{"ride_id": "ride-1", "activity_type": "ride_ended", "latitude": 91, "longitude": 0}`, apperr.InvalidCoordinates},
	}
	for _, tc := range cases {
		if _, err := decode([]byte(tc.value)); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.value, tc.want, err)
		}
	}
}

func TestConsumeAppendsAndSkips(t *testing.T) {
	h, store := newHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appended := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultAppended))
	invalid := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultInvalid))
	rejected := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultRejected))

	r := &scriptedReader{cancel: cancel, steps: []func() (kafka.Message, error){
		msg(`{"ride_id": "ride-1", "activity_type": "ride_started"}`),
		msg(`garbage`),
		msg(`{"ride_id": "ride-404", "activity_type": "lead_assigned", "user_id": "user-2"}`),
		func() (kafka.Message, error) { return kafka.Message{}, errors.New("broker down") },
		msg(`{"ride_id": "ride-1", "activity_type": "lead_assigned", "user_id": "user-2"}`),
	}}

	done := make(chan struct{})
	go func() {
		consume(ctx, r, h, time.Millisecond, 4*time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("consume did not stop")
	}

	events, _, err := store.Page(context.Background(), "ride-1", 10, activity.Cursor{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(events) != 2 || events[0].Type != activity.TypeLeadAssigned || events[1].Type != activity.TypeRideStarted {
		t.Fatalf("unexpected events %+v", events)
	}
	if got := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultAppended)) - appended; got != 2 {
		t.Fatalf("expected 2 appended, got %v", got)
	}
	if got := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultInvalid)) - invalid; got != 1 {
		t.Fatalf("expected 1 invalid, got %v", got)
	}
	if got := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultRejected)) - rejected; got != 1 {
		t.Fatalf("expected 1 rejected, got %v", got)
	}
	if got := r.commits(); len(got) != 4 {
		t.Fatalf("expected every handled message committed, got %v", got)
	}
}

func TestConsumeRetriesFailedAppendBeforeCommit(t *testing.T) {
	dir := ride.NewMemoryDirectory()
	dir.PutRide(ride.Ride{ID: "ride-1", Status: ride.StatusActive})
	store := &flakyStore{MemoryStore: activity.NewMemoryStore(), failures: 2}
	h := &handler{dir: dir, feed: activity.NewFeed(store, activity.FeedOptions{}), log: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &scriptedReader{cancel: cancel, steps: []func() (kafka.Message, error){
		msg(`{"ride_id": "ride-1", "activity_type": "ride_ended"}`),
	}}

	failed := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultFailed))
	consume(ctx, r, h, time.Millisecond, 4*time.Millisecond)

	if store.attempts != 3 {
		t.Fatalf("expected two failed attempts and one success, got %d attempts", store.attempts)
	}
	if got := testutil.ToFloat64(observability.ConsumerMessagesTotal.WithLabelValues(resultFailed)) - failed; got != 2 {
		t.Fatalf("expected 2 failed results, got %v", got)
	}
	events, _, _ := store.Page(context.Background(), "ride-1", 10, activity.Cursor{})
	if len(events) != 1 || events[0].Type != activity.TypeRideEnded {
		t.Fatalf("expected the event appended once, got %+v", events)
	}
	if got := r.commits(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected offset 1 committed after success, got %v", got)
	}
}

func TestConsumeLeavesFailedMessageUncommittedOnShutdown(t *testing.T) {
	dir := ride.NewMemoryDirectory()
	dir.PutRide(ride.Ride{ID: "ride-1", Status: ride.StatusActive})
	store := &flakyStore{MemoryStore: activity.NewMemoryStore(), failures: 1000}
	h := &handler{dir: dir, feed: activity.NewFeed(store, activity.FeedOptions{}), log: zap.NewNop()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r := &scriptedReader{cancel: cancel, steps: []func() (kafka.Message, error){
		msg(`{"ride_id": "ride-1", "activity_type": "lead_removed", "user_id": "user-2"}`),
		msg(`{"ride_id": "ride-1", "activity_type": "ride_ended"}`),
	}}

	consume(ctx, r, h, time.Millisecond, 4*time.Millisecond)
	if got := r.commits(); len(got) != 0 {
		t.Fatalf("failed message must stay uncommitted, got %v", got)
	}
	if store.attempts < 2 {
		t.Fatalf("expected the same message retried, got %d attempts", store.attempts)
	}
	r.mu.Lock()
	remaining := len(r.steps)
	r.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("consumer must not move past a failing message")
	}
}

func TestConsumeStopsDuringBackoff(t *testing.T) {
	h, _ := newHandler()
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedReader{cancel: cancel, steps: []func() (kafka.Message, error){
		func() (kafka.Message, error) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
			return kafka.Message{}, errors.New("broker down")
		},
	}}

	start := time.Now()
	consume(ctx, r, h, time.Minute, time.Minute)
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff must stop on cancel")
	}
}

func TestMetricsMux(t *testing.T) {
	mux := metricsMux()
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
