package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"habit-updater/pkg/circuitbreaker"
	"habit-updater/pkg/trace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memStore struct {
	mu       sync.Mutex
	pending  []*Event
	sent     []int64
	failed   []int64
	fetchErr error
}

func (s *memStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *memStore) MarkAsSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *memStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

type published struct {
	routingKey string
	traceID    string
	payload    any
}

type memPublisher struct {
	failKeys map[string]bool
	err      error
	msgs     []published
}

func (p *memPublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if p.err != nil || p.failKeys[routingKey] {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, published{routingKey, trace.RunID(ctx), payload})
	return nil
}

func event(t *testing.T, id int64, key string, payload any) *Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Event{ID: id, RoutingKey: key, Payload: raw, Status: StatusPending}
}

func TestDispatcher_PublishesAndMarksSent(t *testing.T) {
	store := &memStore{pending: []*Event{
		event(t, 1, "habit.occurrence.due", map[string]any{"habit_id": 3, "trace_id": "run-1"}),
		event(t, 2, "habit.updater.completed", map[string]any{"status": "succeeded"}),
	}}
	pub := &memPublisher{}

	sent := NewDispatcher(store, pub, zap.NewNop()).ProcessPending(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2}, store.sent)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "run-1", pub.msgs[0].traceID)
	assert.Equal(t, "", pub.msgs[1].traceID)
}

func TestDispatcher_FailedPublishIsRetried(t *testing.T) {
	store := &memStore{pending: []*Event{
		event(t, 1, "bad", map[string]any{}),
		event(t, 2, "good", map[string]any{}),
	}}
	pub := &memPublisher{failKeys: map[string]bool{"bad": true}}

	sent := NewDispatcher(store, pub, zap.NewNop()).ProcessPending(context.Background())

	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, store.failed)
	assert.Equal(t, []int64{2}, store.sent)
}

func TestDispatcher_InvalidPayloadMarksFailed(t *testing.T) {
	store := &memStore{pending: []*Event{{ID: 9, RoutingKey: "x", Payload: json.RawMessage(`not json`)}}}

	NewDispatcher(store, &memPublisher{}, zap.NewNop()).ProcessPending(context.Background())

	assert.Equal(t, []int64{9}, store.failed)
	assert.Empty(t, store.sent)
}

func TestDispatcher_OpenBreakerLeavesEventsPending(t *testing.T) {
	store := &memStore{pending: []*Event{
		event(t, 1, "k", map[string]any{}),
		event(t, 2, "k", map[string]any{}),
		event(t, 3, "k", map[string]any{}),
	}}
	pub := &memPublisher{err: errors.New("down")}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour})

	d := NewDispatcher(store, pub, zap.NewNop()).WithCircuitBreaker(cb)
	sent := d.ProcessPending(context.Background())

	assert.Zero(t, sent)
	assert.Equal(t, []int64{1}, store.failed)
	assert.Empty(t, store.sent)
	assert.Equal(t, circuitbreaker.StateOpen, cb.GetState())
}

func TestDispatcher_OpenBreakerLogsUnattemptedCount(t *testing.T) {
	store := &memStore{pending: []*Event{
		event(t, 1, "good", map[string]any{}),
		event(t, 2, "bad", map[string]any{}),
		event(t, 3, "good", map[string]any{}),
		event(t, 4, "good", map[string]any{}),
	}}
	pub := &memPublisher{failKeys: map[string]bool{"bad": true}}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	core, logs := observer.New(zap.WarnLevel)

	sent := NewDispatcher(store, pub, zap.New(core)).WithCircuitBreaker(cb).ProcessPending(context.Background())

	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)

	postponed := logs.FilterMessage("Circuit breaker open, postponing outbox batch").All()
	require.Len(t, postponed, 1)
	assert.Equal(t, int64(2), postponed[0].ContextMap()["remaining"])
}

func TestDispatcher_FetchErrorAndBatchSize(t *testing.T) {
	store := &memStore{fetchErr: errors.New("db down")}
	d := NewDispatcher(store, &memPublisher{}, zap.NewNop())
	assert.Zero(t, d.ProcessPending(context.Background()))

	store = &memStore{pending: []*Event{
		event(t, 1, "k", map[string]any{}),
		event(t, 2, "k", map[string]any{}),
	}}
	d = NewDispatcher(store, &memPublisher{}, zap.NewNop()).WithBatchSize(1)
	assert.Equal(t, 1, d.ProcessPending(context.Background()))
	assert.Equal(t, []int64{1}, store.sent)
}

func TestDispatcher_StartStopsOnCancel(t *testing.T) {
	store := &memStore{pending: []*Event{event(t, 1, "k", map[string]any{})}}
	d := NewDispatcher(store, &memPublisher{}, zap.NewNop()).WithInterval(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) > 0
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
