package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"freightline/internal/events"
)

func TestRedisStateStore_PutWritesHashAndStream(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{}
	client := &stubRedisClient{pipe: pipe}
	store := NewRedisStateStore(client, "order_status_events", 0, 0)

	ev := events.OrderStatusEvent{
		OrderID:    5,
		CustomerID: "cust-1",
		Status:     "SHIPPED",
		ShipID:     3,
		Timestamp:  time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Put(context.Background(), "5", ev); err != nil {
		t.Fatalf("put: %v", err)
	}

	if len(pipe.hsets) != 1 {
		t.Fatalf("expected 1 HSET, got %d", len(pipe.hsets))
	}
	if pipe.hsets[0].key != "order-status:5" {
		t.Fatalf("unexpected hash key %q", pipe.hsets[0].key)
	}
	hash := toMap(pipe.hsets[0].values)
	if hash["status"] != "SHIPPED" || hash["customer_id"] != "cust-1" {
		t.Fatalf("unexpected hash values: %+v", hash)
	}

	if len(pipe.xadds) != 1 || pipe.xadds[0].Stream != "order_status_events" {
		t.Fatalf("expected 1 XADD to order_status_events, got %+v", pipe.xadds)
	}
	if !pipe.execCalled {
		t.Fatal("expected Exec to be called")
	}
}

func TestRedisStateStore_TTLMaxLenAndDefaultStream(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{}
	client := &stubRedisClient{pipe: pipe}
	store := NewRedisStateStore(client, "", time.Minute, 100)

	if err := store.Put(context.Background(), "1", events.OrderStatusEvent{Status: "PROCESSING"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if pipe.expirations["order-status:1"] != time.Minute {
		t.Fatalf("unexpected ttl: %v", pipe.expirations["order-status:1"])
	}
	if len(pipe.xadds) != 1 {
		t.Fatalf("expected 1 XADD, got %d", len(pipe.xadds))
	}
	if pipe.xadds[0].Stream != "order_status_events" {
		t.Fatalf("expected default stream, got %q", pipe.xadds[0].Stream)
	}
	if pipe.xadds[0].MaxLen != 100 || !pipe.xadds[0].Approx {
		t.Fatalf("expected maxlen settings applied, got %+v", pipe.xadds[0])
	}
}

func TestRedisStateStore_RespectsCanceledContext(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{}
	client := &stubRedisClient{pipe: pipe}
	store := NewRedisStateStore(client, "", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Put(ctx, "1", events.OrderStatusEvent{Status: "PROCESSING"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pipe.execCalled || len(pipe.hsets) > 0 {
		t.Fatal("expected no writes when context canceled")
	}
}

func TestRedisStateStore_GetRoundTrip(t *testing.T) {
	t.Parallel()

	client := &stubRedisClient{
		pipe: &stubPipeline{},
		hashes: map[string]map[string]string{
			"order-status:5": {
				"order_id":    "5",
				"customer_id": "cust-1",
				"status":      "SHIPPED",
				"ship_id":     "3",
				"timestamp":   "2026-08-28T10:00:00Z",
			},
		},
	}
	store := NewRedisStateStore(client, "", 0, 0)

	ev, ok, err := store.Get(context.Background(), "5")
	if err != nil || !ok {
		t.Fatalf("expected a value, ok=%v err=%v", ok, err)
	}
	if ev.OrderID != 5 || ev.Status != "SHIPPED" || ev.ShipID != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("timestamp must round trip")
	}

	_, ok, err = store.Get(context.Background(), "999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no value for an unknown key")
	}
}

type stubRedisClient struct {
	pipe   *stubPipeline
	hashes map[string]map[string]string
}

func (s *stubRedisClient) Pipeline() RedisPipeliner { return s.pipe }

func (s *stubRedisClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	cmd.SetVal(s.hashes[key])
	return cmd
}

type stubPipeline struct {
	hsets []struct {
		key    string
		values []any
	}
	expirations map[string]time.Duration
	xadds       []redis.XAddArgs
	execCalled  bool
	execErr     error
}

func (s *stubPipeline) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	s.hsets = append(s.hsets, struct {
		key    string
		values []any
	}{key: key, values: values})
	return redis.NewIntCmd(context.Background())
}

func (s *stubPipeline) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if s.expirations == nil {
		s.expirations = map[string]time.Duration{}
	}
	s.expirations[key] = ttl
	return redis.NewBoolCmd(context.Background())
}

func (s *stubPipeline) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	s.xadds = append(s.xadds, *a)
	return redis.NewStringCmd(context.Background())
}

func (s *stubPipeline) Exec(_ context.Context) ([]redis.Cmder, error) {
	s.execCalled = true
	return nil, s.execErr
}

func toMap(args []any) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	if m, ok := args[0].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
