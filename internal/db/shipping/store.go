// Package shippingdb persists ships and order assignments in Postgres.
package shippingdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"freightline/internal/shipping"
)

// Store is a Postgres-backed shipping store. Assign runs as one
// transaction with row-level locking, so two partitions racing on the same
// destination cannot lose a load increment.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB) (*Store, error) {
	store := NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the shipping tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ship_tracking (
			ship_id BIGSERIAL PRIMARY KEY,
			destination_country TEXT NOT NULL,
			total_orders INT NOT NULL DEFAULT 0,
			departure_date TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_shipment_assignments (
			order_id BIGINT PRIMARY KEY,
			ship_id BIGINT NOT NULL REFERENCES ship_tracking(ship_id),
			assigned_date TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ship_tracking_destination
			ON ship_tracking (destination_country, total_orders, ship_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Assign implements the assignment algorithm in one transaction: return the
// existing assignment if the order was already processed, otherwise lock the
// least-loaded ship row, insert the assignment and bump the load counter.
func (s *Store) Assign(ctx context.Context, orderID int64, destination string, now time.Time) (shipping.Assignment, shipping.ShipTracking, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return shipping.Assignment{}, shipping.ShipTracking{}, false, err
	}
	defer tx.Rollback()

	existing, ship, found, err := s.lookupAssignment(ctx, tx, orderID)
	if err != nil {
		return shipping.Assignment{}, shipping.ShipTracking{}, false, err
	}
	if found {
		if err := tx.Commit(); err != nil {
			return shipping.Assignment{}, shipping.ShipTracking{}, false, err
		}
		return existing, ship, false, nil
	}

	// FOR UPDATE holds the chosen ship row until commit, serializing
	// concurrent assignments targeting the same destination.
	row := tx.QueryRowContext(ctx, `
		SELECT ship_id, destination_country, total_orders, departure_date
		FROM ship_tracking
		WHERE destination_country = $1
		ORDER BY total_orders ASC, ship_id ASC
		LIMIT 1
		FOR UPDATE`,
		destination,
	)
	if err := row.Scan(&ship.ShipID, &ship.DestinationCountry, &ship.TotalOrders, &ship.DepartureDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shipping.Assignment{}, shipping.ShipTracking{}, false,
				fmt.Errorf("%w: %s", shipping.ErrNoShipAvailable, destination)
		}
		return shipping.Assignment{}, shipping.ShipTracking{}, false, err
	}

	assignment := shipping.Assignment{OrderID: orderID, ShipID: ship.ShipID, AssignedDate: now}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_shipment_assignments (order_id, ship_id, assigned_date)
		VALUES ($1, $2, $3)`,
		assignment.OrderID, assignment.ShipID, assignment.AssignedDate,
	); err != nil {
		return shipping.Assignment{}, shipping.ShipTracking{}, false, fmt.Errorf("insert assignment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ship_tracking
		SET total_orders = total_orders + 1
		WHERE ship_id = $1`,
		ship.ShipID,
	); err != nil {
		return shipping.Assignment{}, shipping.ShipTracking{}, false, fmt.Errorf("increment ship load: %w", err)
	}
	ship.TotalOrders++

	if err := tx.Commit(); err != nil {
		return shipping.Assignment{}, shipping.ShipTracking{}, false, err
	}
	return assignment, ship, true, nil
}

func (s *Store) lookupAssignment(ctx context.Context, tx *sql.Tx, orderID int64) (shipping.Assignment, shipping.ShipTracking, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT a.order_id, a.ship_id, a.assigned_date,
		       t.destination_country, t.total_orders, t.departure_date
		FROM order_shipment_assignments a
		JOIN ship_tracking t ON t.ship_id = a.ship_id
		WHERE a.order_id = $1`,
		orderID,
	)

	var assignment shipping.Assignment
	var ship shipping.ShipTracking
	err := row.Scan(
		&assignment.OrderID, &assignment.ShipID, &assignment.AssignedDate,
		&ship.DestinationCountry, &ship.TotalOrders, &ship.DepartureDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return shipping.Assignment{}, shipping.ShipTracking{}, false, nil
	}
	if err != nil {
		return shipping.Assignment{}, shipping.ShipTracking{}, false, err
	}
	ship.ShipID = assignment.ShipID
	return assignment, ship, true, nil
}

// AddShip inserts the ship and returns it with its assigned id. A nonzero
// ShipID is honored, which lets deployments seed fixed fleets.
func (s *Store) AddShip(ctx context.Context, ship shipping.ShipTracking) (shipping.ShipTracking, error) {
	if ship.ShipID != 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO ship_tracking (ship_id, destination_country, total_orders, departure_date)
			VALUES ($1, $2, $3, $4)`,
			ship.ShipID, ship.DestinationCountry, ship.TotalOrders, ship.DepartureDate,
		)
		return ship, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ship_tracking (destination_country, total_orders, departure_date)
		VALUES ($1, $2, $3)
		RETURNING ship_id`,
		ship.DestinationCountry, ship.TotalOrders, ship.DepartureDate,
	)
	if err := row.Scan(&ship.ShipID); err != nil {
		return shipping.ShipTracking{}, fmt.Errorf("insert ship: %w", err)
	}
	return ship, nil
}

// GetShip loads one ship.
func (s *Store) GetShip(ctx context.Context, shipID int64) (shipping.ShipTracking, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ship_id, destination_country, total_orders, departure_date
		FROM ship_tracking
		WHERE ship_id = $1`,
		shipID,
	)

	var ship shipping.ShipTracking
	if err := row.Scan(&ship.ShipID, &ship.DestinationCountry, &ship.TotalOrders, &ship.DepartureDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shipping.ShipTracking{}, fmt.Errorf("ship %d: %w", shipID, shipping.ErrShipNotFound)
		}
		return shipping.ShipTracking{}, err
	}
	return ship, nil
}

// ListShips returns all ships ordered by id.
func (s *Store) ListShips(ctx context.Context) ([]shipping.ShipTracking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ship_id, destination_country, total_orders, departure_date
		FROM ship_tracking
		ORDER BY ship_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ships []shipping.ShipTracking
	for rows.Next() {
		var ship shipping.ShipTracking
		if err := rows.Scan(&ship.ShipID, &ship.DestinationCountry, &ship.TotalOrders, &ship.DepartureDate); err != nil {
			return nil, err
		}
		ships = append(ships, ship)
	}
	return ships, rows.Err()
}
