package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"freightline/internal/bus"
	"freightline/internal/inventory"
)

type stubChecker struct {
	err   error
	calls int
}

func (s *stubChecker) Check(ctx context.Context, items []inventory.ItemRequest) error {
	s.calls++
	return s.err
}

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

func (p *capturePublisher) byTopic(topic string) []bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []bus.Message
	for _, m := range p.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		CustomerID:         "cust-1",
		DestinationCountry: "Norway",
		Items:              []Item{{ProductID: 1, Quantity: 2}},
	}
}

func TestSubmit_PersistsAndPublishes(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturePublisher{}
	intake := NewIntake(store, &stubChecker{}, pub, nil)

	order, err := intake.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != 1 {
		t.Fatalf("expected id 1, got %d", order.ID)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 persisted order, got %d", store.Count())
	}

	submitted := pub.byTopic(bus.TopicOrderSubmitted)
	if len(submitted) != 1 {
		t.Fatalf("expected 1 order-submitted event, got %d", len(submitted))
	}
	if submitted[0].Key != "1" {
		t.Fatalf("event must be keyed by order id, got %q", submitted[0].Key)
	}
}

func TestSubmit_InventoryFailureSkipsPersistence(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturePublisher{}
	checker := &stubChecker{err: inventory.ErrUnavailable}
	intake := NewIntake(store, checker, pub, nil)

	req := validRequest()
	req.CorrelationKey = "corr-7"
	_, err := intake.Submit(context.Background(), req)
	if !errors.Is(err, ErrInventoryUnavailable) {
		t.Fatalf("expected ErrInventoryUnavailable, got %v", err)
	}
	if store.Count() != 0 {
		t.Fatal("rejected order must not be persisted")
	}

	dlt := pub.byTopic(bus.TopicOrderInventoryDLT)
	if len(dlt) != 1 {
		t.Fatalf("expected 1 inventory dlt event, got %d", len(dlt))
	}
	if dlt[0].Key != "corr-7" {
		t.Fatalf("dlt event must use the correlation key, got %q", dlt[0].Key)
	}
	if len(pub.byTopic(bus.TopicOrderSubmitted)) != 0 {
		t.Fatal("rejected order must not publish order-submitted")
	}
}

func TestSubmit_GeneratesCorrelationKeyWhenMissing(t *testing.T) {
	pub := &capturePublisher{}
	intake := NewIntake(NewMemoryStore(), &stubChecker{err: inventory.ErrUnavailable}, pub, nil)

	_, _ = intake.Submit(context.Background(), validRequest())
	dlt := pub.byTopic(bus.TopicOrderInventoryDLT)
	if len(dlt) != 1 || dlt[0].Key == "" {
		t.Fatalf("expected generated correlation key, got %+v", dlt)
	}
}

func TestSubmit_ValidationRejectsBeforeSaga(t *testing.T) {
	pub := &capturePublisher{}
	checker := &stubChecker{}
	intake := NewIntake(NewMemoryStore(), checker, pub, nil)

	cases := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"no items", SubmitRequest{CustomerID: "c", DestinationCountry: "Norway"}, ErrNoItems},
		{"zero quantity", SubmitRequest{CustomerID: "c", DestinationCountry: "Norway", Items: []Item{{ProductID: 1}}}, ErrInvalidQuantity},
		{"no customer", SubmitRequest{DestinationCountry: "Norway", Items: []Item{{ProductID: 1, Quantity: 1}}}, ErrCustomerRequired},
		{"no destination", SubmitRequest{CustomerID: "c", Items: []Item{{ProductID: 1, Quantity: 1}}}, ErrDestinationMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := intake.Submit(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if checker.calls != 0 {
		t.Fatalf("validation failures must not reach the ledger, got %d calls", checker.calls)
	}
	if len(pub.published) != 0 {
		t.Fatalf("validation failures must not publish, got %v", pub.published)
	}
}
