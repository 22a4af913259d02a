// Package statusdb persists the append-only status ledger in Postgres.
package statusdb

import (
	"context"
	"database/sql"
	"fmt"

	"freightline/internal/status"
)

// Store is a Postgres-backed status record store. Rows are only ever
// inserted.
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

// InitSchema creates the ledger table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS order_status_records (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL,
			customer_id TEXT NOT NULL,
			status_code INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// Append inserts the record and returns it with its row id.
func (s *Store) Append(ctx context.Context, rec status.Record) (status.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO order_status_records (order_id, customer_id, status_code, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		rec.OrderID, rec.CustomerID, rec.StatusCode, rec.CreatedAt,
	)
	if err := row.Scan(&rec.ID); err != nil {
		return status.Record{}, fmt.Errorf("insert status record: %w", err)
	}
	return rec, nil
}

// ListAll returns the full history in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]status.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, customer_id, status_code, created_at
		FROM order_status_records
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []status.Record
	for rows.Next() {
		var rec status.Record
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.CustomerID, &rec.StatusCode, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MinOrderID returns the smallest order id over all records, or
// ErrEmptyLedger when the table is empty.
func (s *Store) MinOrderID(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT MIN(order_id) FROM order_status_records`)

	var min sql.NullInt64
	if err := row.Scan(&min); err != nil {
		return 0, err
	}
	if !min.Valid {
		return 0, status.ErrEmptyLedger
	}
	return min.Int64, nil
}
