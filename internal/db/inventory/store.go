// Package inventorydb persists inventory records in Postgres.
package inventorydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freightline/internal/inventory"
)

// Store is a Postgres-backed inventory store.
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

// InitSchema creates the inventory table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS inventory_records (
			product_id BIGINT PRIMARY KEY,
			quantity_available INT NOT NULL CHECK (quantity_available >= 0)
		)`)
	return err
}

// Get returns the record for one product.
func (s *Store) Get(ctx context.Context, productID int64) (inventory.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, quantity_available
		FROM inventory_records
		WHERE product_id = $1`,
		productID,
	)

	var rec inventory.Record
	if err := row.Scan(&rec.ProductID, &rec.QuantityAvailable); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inventory.Record{}, fmt.Errorf("product %d: %w", productID, inventory.ErrProductNotFound)
		}
		return inventory.Record{}, err
	}
	return rec, nil
}

// Reserve decrements stock for every item in one transaction. Each row is
// locked with SELECT ... FOR UPDATE before the check, so concurrent
// reservations from any number of service instances serialize on the
// products they share; any shortfall rolls back with nothing changed.
// Items arrive ordered by product id, which keeps the lock order stable.
func (s *Store) Reserve(ctx context.Context, items []inventory.ItemRequest) ([]inventory.Shortfall, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var short []inventory.Shortfall
	for _, item := range items {
		row := tx.QueryRowContext(ctx, `
			SELECT quantity_available
			FROM inventory_records
			WHERE product_id = $1
			FOR UPDATE`,
			item.ProductID,
		)

		var available int
		if err := row.Scan(&available); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				short = append(short, inventory.Shortfall{ProductID: item.ProductID, Requested: item.Quantity, Missing: true})
				continue
			}
			return nil, err
		}
		if available < item.Quantity {
			short = append(short, inventory.Shortfall{
				ProductID: item.ProductID,
				Available: available,
				Requested: item.Quantity,
			})
		}
	}
	if len(short) > 0 {
		return short, nil
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory_records
			SET quantity_available = quantity_available - $2
			WHERE product_id = $1`,
			item.ProductID, item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("reserve product %d: %w", item.ProductID, err)
		}
	}
	return nil, tx.Commit()
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, rec inventory.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_records (product_id, quantity_available)
		VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET quantity_available = EXCLUDED.quantity_available`,
		rec.ProductID, rec.QuantityAvailable,
	)
	return err
}
