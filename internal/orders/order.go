// Package orders implements order intake: validation, the synchronous
// inventory check, persistence, and the hand-off into the saga.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Order is the persisted order. Once submitted it is read-only for every
// downstream component of the saga.
type Order struct {
	ID                 int64
	CustomerID         string
	DestinationCountry string
	CreatedAt          time.Time
	Items              []Item
}

// Item is a single product line.
type Item struct {
	ProductID int64
	Quantity  int
}

// Validation errors. These are synchronous rejections and never enter the saga.
var (
	ErrNoItems            = errors.New("order must contain at least one item")
	ErrInvalidQuantity    = errors.New("item quantity must be at least 1")
	ErrCustomerRequired   = errors.New("customer id is required")
	ErrDestinationMissing = errors.New("destination country is required")
)

// SubmitRequest is the intake input.
type SubmitRequest struct {
	CustomerID         string
	DestinationCountry string
	CorrelationKey     string
	Items              []Item
}

// Validate checks the request shape.
func (r SubmitRequest) Validate() error {
	if r.CustomerID == "" {
		return ErrCustomerRequired
	}
	if r.DestinationCountry == "" {
		return ErrDestinationMissing
	}
	if len(r.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range r.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
	}
	return nil
}

// Store persists orders and assigns their ids.
type Store interface {
	Save(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
}

// ErrOrderNotFound signals an unknown order id.
var ErrOrderNotFound = errors.New("order not found")

// NewMemoryStore constructs an in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[int64]Order)}
}

// MemoryStore keeps orders in memory with sequential positive ids.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]Order
}

func (s *MemoryStore) Save(ctx context.Context, order Order) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = order
	return order, nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	return order, nil
}

// Count returns the number of persisted orders (for testing/inspection).
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
