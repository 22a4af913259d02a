// Package shipping implements the ship assignment engine: picking the
// least-loaded ship for a destination and recording the assignment exactly
// once per order.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ShipTracking is one outbound ship. TotalOrders is the load counter used
// for least-loaded selection and only ever grows.
type ShipTracking struct {
	ShipID             int64
	DestinationCountry string
	TotalOrders        int
	DepartureDate      time.Time
}

// Assignment binds an order to a ship. At most one exists per order id.
type Assignment struct {
	OrderID      int64
	ShipID       int64
	AssignedDate time.Time
}

// ErrNoShipAvailable signals that no ship serves the destination. Callers
// treat it as retryable, not permanent.
var ErrNoShipAvailable = errors.New("no ship available for destination")

// ErrShipNotFound signals an unknown ship id.
var ErrShipNotFound = errors.New("ship not found")

// Store persists ships and assignments. Assign runs the full assignment
// algorithm as one atomic unit: implementations must guarantee that
// concurrent calls for the same destination never lose a load increment
// and never create two assignments for one order.
type Store interface {
	// Assign returns the order's assignment and the carrying ship.
	// created is false when the assignment already existed (redelivery).
	Assign(ctx context.Context, orderID int64, destination string, now time.Time) (Assignment, ShipTracking, bool, error)
	AddShip(ctx context.Context, ship ShipTracking) (ShipTracking, error)
	GetShip(ctx context.Context, shipID int64) (ShipTracking, error)
	ListShips(ctx context.Context) ([]ShipTracking, error)
}

// NewMemoryStore constructs an empty in-memory shipping store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ships:       make(map[int64]ShipTracking),
		assignments: make(map[int64]Assignment),
	}
}

// MemoryStore keeps ships and assignments in memory. One mutex covers the
// whole Assign sequence, which is the in-process equivalent of the
// row-locked transaction the Postgres store uses.
type MemoryStore struct {
	mu          sync.Mutex
	nextShipID  int64
	ships       map[int64]ShipTracking
	assignments map[int64]Assignment
}

func (s *MemoryStore) Assign(ctx context.Context, orderID int64, destination string, now time.Time) (Assignment, ShipTracking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.assignments[orderID]; ok {
		ship, shipOK := s.ships[existing.ShipID]
		if !shipOK {
			return Assignment{}, ShipTracking{}, false, fmt.Errorf("ship %d: %w", existing.ShipID, ErrShipNotFound)
		}
		return existing, ship, false, nil
	}

	ship, ok := s.leastLoaded(destination)
	if !ok {
		return Assignment{}, ShipTracking{}, false, fmt.Errorf("%w: %s", ErrNoShipAvailable, destination)
	}

	assignment := Assignment{OrderID: orderID, ShipID: ship.ShipID, AssignedDate: now}
	s.assignments[orderID] = assignment
	ship.TotalOrders++
	s.ships[ship.ShipID] = ship

	return assignment, ship, true, nil
}

// leastLoaded picks the ship with the fewest orders for the destination,
// ties broken by lowest ship id so selection stays deterministic.
func (s *MemoryStore) leastLoaded(destination string) (ShipTracking, bool) {
	var best ShipTracking
	found := false
	for _, ship := range s.ships {
		if ship.DestinationCountry != destination {
			continue
		}
		if !found ||
			ship.TotalOrders < best.TotalOrders ||
			(ship.TotalOrders == best.TotalOrders && ship.ShipID < best.ShipID) {
			best = ship
			found = true
		}
	}
	return best, found
}

func (s *MemoryStore) AddShip(ctx context.Context, ship ShipTracking) (ShipTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ship.ShipID == 0 {
		s.nextShipID++
		ship.ShipID = s.nextShipID
	} else if ship.ShipID > s.nextShipID {
		s.nextShipID = ship.ShipID
	}
	s.ships[ship.ShipID] = ship
	return ship, nil
}

func (s *MemoryStore) GetShip(ctx context.Context, shipID int64) (ShipTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ship, ok := s.ships[shipID]
	if !ok {
		return ShipTracking{}, fmt.Errorf("ship %d: %w", shipID, ErrShipNotFound)
	}
	return ship, nil
}

func (s *MemoryStore) ListShips(ctx context.Context) ([]ShipTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ShipTracking, 0, len(s.ships))
	for _, ship := range s.ships {
		out = append(out, ship)
	}
	return out, nil
}

// AssignmentCount returns the number of assignments (for testing/inspection).
func (s *MemoryStore) AssignmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assignments)
}
