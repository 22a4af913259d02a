package inventory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"freightline/internal/reliability"
)

func TestLocalChecker_AvailableAndReserves(t *testing.T) {
	store := seedStore(t, Record{ProductID: 1, QuantityAvailable: 5})
	checker := NewLocalChecker(NewService(store, nil))

	if err := checker.Check(context.Background(), []ItemRequest{{ProductID: 1, Quantity: 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Quantity(1) != 3 {
		t.Fatalf("expected reservation, got quantity %d", store.Quantity(1))
	}
}

func TestLocalChecker_Unavailable(t *testing.T) {
	checker := NewLocalChecker(NewService(NewMemoryStore(), nil))

	err := checker.Check(context.Background(), []ItemRequest{{ProductID: 1, Quantity: 1}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPChecker_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/inventory/check" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available":true}`))
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL, time.Second, nil)
	if err := checker.Check(context.Background(), []ItemRequest{{ProductID: 1, Quantity: 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPChecker_OutOfStockIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"available":false,"unavailableItems":["product 1 has insufficient quantity (available: 1, requested: 2)"]}`))
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL, time.Second, nil)
	err := checker.Check(context.Background(), []ItemRequest{{ProductID: 1, Quantity: 2}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPChecker_TimeoutIsUnavailable(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	checker := NewHTTPChecker(srv.URL, 20*time.Millisecond, nil)
	err := checker.Check(context.Background(), []ItemRequest{{ProductID: 1, Quantity: 1}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
	}
}

func TestHTTPChecker_BreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := reliability.NewCircuitBreaker(reliability.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})
	checker := NewHTTPChecker(srv.URL, time.Second, breaker)

	for i := 0; i < 4; i++ {
		err := checker.Check(context.Background(), []ItemRequest{{ProductID: 1, Quantity: 1}})
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	if calls != 2 {
		t.Fatalf("breaker should stop calls after 2 failures, server saw %d", calls)
	}
}
