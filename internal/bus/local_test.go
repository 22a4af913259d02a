package bus

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

func waitDrained(t *testing.T, b *LocalBus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.Drained() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("bus did not drain in time")
}

func TestLocalBus_DeliversToAllGroups(t *testing.T) {
	b := NewLocalBus(nil)
	defer b.Close()

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(group string) Handler {
		return func(ctx context.Context, msg Message) error {
			mu.Lock()
			got[group] = append(got[group], msg.Key)
			mu.Unlock()
			return nil
		}
	}

	if err := b.Subscribe("orders", "status", record("status")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe("orders", "shipping", record("shipping")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "orders", "1", []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitDrained(t, b)

	mu.Lock()
	defer mu.Unlock()
	if len(got["status"]) != 1 || len(got["shipping"]) != 1 {
		t.Fatalf("expected both groups to receive the message, got %v", got)
	}
}

func TestLocalBus_PreservesPerKeyOrder(t *testing.T) {
	b := NewLocalBus(nil, WithPartitions(4))
	defer b.Close()

	const perKey = 50
	keys := []string{"11", "22", "33", "44"}

	var mu sync.Mutex
	seen := map[string][]int{}
	handler := func(ctx context.Context, msg Message) error {
		n, _ := strconv.Atoi(string(msg.Value))
		mu.Lock()
		seen[msg.Key] = append(seen[msg.Key], n)
		mu.Unlock()
		return nil
	}
	if err := b.Subscribe("orders", "g", handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < perKey; i++ {
		for _, key := range keys {
			if err := b.Publish(context.Background(), "orders", key, []byte(strconv.Itoa(i))); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}
	}
	waitDrained(t, b)

	mu.Lock()
	defer mu.Unlock()
	for _, key := range keys {
		if len(seen[key]) != perKey {
			t.Fatalf("key %s: expected %d messages, got %d", key, perKey, len(seen[key]))
		}
		for i, n := range seen[key] {
			if n != i {
				t.Fatalf("key %s reordered: position %d holds %d", key, i, n)
			}
		}
	}
}

func TestLocalBus_PublishAfterCloseFails(t *testing.T) {
	b := NewLocalBus(nil)
	b.Close()
	if err := b.Publish(context.Background(), "orders", "1", nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.Subscribe("orders", "g", func(context.Context, Message) error { return nil }); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLocalBus_SameKeySamePartition(t *testing.T) {
	b := NewLocalBus(nil, WithPartitions(8))
	defer b.Close()
	if b.partition("42") != b.partition("42") {
		t.Fatal("partitioning must be deterministic")
	}
}

func TestDeadLetterTopic(t *testing.T) {
	if got := DeadLetterTopic(TopicUnassignedOrders); got != "unassigned-shipping-orders-dlt" {
		t.Fatalf("unexpected dlt name: %s", got)
	}
}
