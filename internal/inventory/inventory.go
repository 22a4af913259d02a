// Package inventory implements the inventory ledger: a synchronous
// check-and-optionally-reserve operation over product quantities.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Record tracks the available quantity for one product.
// QuantityAvailable never goes below zero.
type Record struct {
	ProductID         int64
	QuantityAvailable int
}

// ItemRequest asks for a quantity of one product.
type ItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// CheckRequest is the ledger's single operation input. When Reserve is set
// and every item is fully available, quantities are decremented in the same
// call.
type CheckRequest struct {
	Items   []ItemRequest `json:"items"`
	Reserve bool          `json:"reserve"`
}

// CheckResponse reports overall availability plus per-item detail for the
// items that could not be covered.
type CheckResponse struct {
	Available        bool     `json:"available"`
	UnavailableItems []string `json:"unavailableItems,omitempty"`
}

// Shortfall describes one product a reservation could not cover.
type Shortfall struct {
	ProductID int64
	Available int
	Requested int
	Missing   bool
}

// Store persists inventory records. Reserve is the store's atomic unit:
// implementations must decrement every item or none, even across service
// instances sharing the same backing storage.
type Store interface {
	Get(ctx context.Context, productID int64) (Record, error)
	Save(ctx context.Context, rec Record) error
	Reserve(ctx context.Context, items []ItemRequest) ([]Shortfall, error)
}

// ErrProductNotFound signals an unknown product id.
var ErrProductNotFound = errors.New("product not found")

// NewMemoryStore constructs an empty in-memory inventory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]Record)}
}

// MemoryStore keeps inventory records in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]Record
}

func (s *MemoryStore) Get(ctx context.Context, productID int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[productID]
	if !ok {
		return Record{}, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ProductID] = rec
	return nil
}

// Reserve decrements stock for every item while holding the store mutex,
// or reports the shortfalls and changes nothing. Items arrive aggregated
// per product.
func (s *MemoryStore) Reserve(ctx context.Context, items []ItemRequest) ([]Shortfall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var short []Shortfall
	for _, item := range items {
		rec, ok := s.records[item.ProductID]
		if !ok {
			short = append(short, Shortfall{ProductID: item.ProductID, Requested: item.Quantity, Missing: true})
			continue
		}
		if rec.QuantityAvailable < item.Quantity {
			short = append(short, Shortfall{
				ProductID: item.ProductID,
				Available: rec.QuantityAvailable,
				Requested: item.Quantity,
			})
		}
	}
	if len(short) > 0 {
		return short, nil
	}

	for _, item := range items {
		rec := s.records[item.ProductID]
		rec.QuantityAvailable -= item.Quantity
		s.records[item.ProductID] = rec
	}
	return nil, nil
}

// Quantity returns the current quantity for a product (for testing/inspection).
func (s *MemoryStore) Quantity(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[productID].QuantityAvailable
}
