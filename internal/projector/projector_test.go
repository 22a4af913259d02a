package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"freightline/internal/bus"
	"freightline/internal/events"
)

type capturePublisher struct {
	mu        sync.Mutex
	published []bus.Message
}

func (p *capturePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, bus.Message{Topic: topic, Key: key, Value: value})
	return nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []events.OrderStatusEvent
}

func (n *captureNotifier) BroadcastStatus(ev events.OrderStatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func statusMessage(t *testing.T, orderID int64, status string) bus.Message {
	t.Helper()
	payload, err := events.Encode(events.OrderStatusEvent{
		OrderID:    orderID,
		CustomerID: "cust-1",
		Status:     status,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return bus.Message{
		Topic: bus.TopicOrderStatus,
		Key:   fmt.Sprintf("%d", orderID),
		Value: payload,
	}
}

func TestHandleOrderStatus_LastWriteWins(t *testing.T) {
	store := NewMemoryStateStore()
	pub := &capturePublisher{}
	projector := NewProjector(store, pub, nil, nil)

	for _, status := range []string{"PROCESSING", "NO_SHIP_AVAILABLE", "SHIPPED"} {
		msg := statusMessage(t, 1, status)
		if err := projector.HandleOrderStatus(context.Background(), msg); err != nil {
			t.Fatalf("handle %s: %v", status, err)
		}
	}

	latest, ok, err := projector.Latest(context.Background(), "1")
	if err != nil || !ok {
		t.Fatalf("expected a latest value, ok=%v err=%v", ok, err)
	}
	if latest.Status != "SHIPPED" {
		t.Fatalf("latest must equal the last event, got %s", latest.Status)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.published) != 3 {
		t.Fatalf("every update must be republished, got %d", len(pub.published))
	}
	for _, m := range pub.published {
		if m.Topic != bus.TopicLatestOrderStatus {
			t.Fatalf("expected latest-order-status topic, got %s", m.Topic)
		}
		if m.Key != "1" {
			t.Fatalf("republished update must keep the key, got %q", m.Key)
		}
	}
}

func TestHandleOrderStatus_KeysAreIndependent(t *testing.T) {
	store := NewMemoryStateStore()
	projector := NewProjector(store, &capturePublisher{}, nil, nil)

	if err := projector.HandleOrderStatus(context.Background(), statusMessage(t, 1, "SHIPPED")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := projector.HandleOrderStatus(context.Background(), statusMessage(t, -1, "FAILED")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shipped, ok, _ := projector.Latest(context.Background(), "1")
	if !ok || shipped.Status != "SHIPPED" {
		t.Fatalf("expected SHIPPED for order 1, got %+v", shipped)
	}
	failed, ok, _ := projector.Latest(context.Background(), "-1")
	if !ok || failed.Status != "FAILED" {
		t.Fatalf("expected FAILED for order -1, got %+v", failed)
	}
}

func TestHandleOrderStatus_NotifiesSubscribers(t *testing.T) {
	notifier := &captureNotifier{}
	projector := NewProjector(NewMemoryStateStore(), &capturePublisher{}, notifier, nil)

	if err := projector.HandleOrderStatus(context.Background(), statusMessage(t, 1, "PROCESSING")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0].Status != "PROCESSING" {
		t.Fatalf("expected one broadcast, got %+v", notifier.events)
	}
}

func TestHandleOrderStatus_MalformedPayload(t *testing.T) {
	projector := NewProjector(NewMemoryStateStore(), &capturePublisher{}, nil, nil)

	msg := bus.Message{Topic: bus.TopicOrderStatus, Key: "1", Value: []byte("{")}
	err := projector.HandleOrderStatus(context.Background(), msg)
	if !errors.Is(err, events.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestLatest_MissingKey(t *testing.T) {
	projector := NewProjector(NewMemoryStateStore(), &capturePublisher{}, nil, nil)

	_, ok, err := projector.Latest(context.Background(), "999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no value for an unseen key")
	}
}
