// Package ordersdb persists orders and their items in Postgres.
package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freightline/internal/orders"
)

// Store is a Postgres-backed order store.
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

// InitSchema creates the order tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			customer_id TEXT NOT NULL,
			destination_country TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id BIGINT NOT NULL,
			quantity INT NOT NULL CHECK (quantity >= 1)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts the order and its items in one transaction and returns the
// order with its assigned id.
func (s *Store) Save(ctx context.Context, order orders.Order) (orders.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return orders.Order{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id, destination_country, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		order.CustomerID, order.DestinationCountry, order.CreatedAt,
	)
	if err := row.Scan(&order.ID); err != nil {
		return orders.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity)
			VALUES ($1, $2, $3)`,
			order.ID, item.ProductID, item.Quantity,
		); err != nil {
			return orders.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return orders.Order{}, err
	}
	return order, nil
}

// Get loads an order with its items.
func (s *Store) Get(ctx context.Context, id int64) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, destination_country, created_at
		FROM orders
		WHERE id = $1`,
		id,
	)

	var order orders.Order
	if err := row.Scan(&order.ID, &order.CustomerID, &order.DestinationCountry, &order.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, fmt.Errorf("order %d: %w", id, orders.ErrOrderNotFound)
		}
		return orders.Order{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		id,
	)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item orders.Item
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return orders.Order{}, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return orders.Order{}, err
	}
	return order, nil
}
