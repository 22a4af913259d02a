package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"freightline/cmd/server/config"
	inventorydb "freightline/internal/db/inventory"
	ordersdb "freightline/internal/db/orders"
	shippingdb "freightline/internal/db/shipping"
	statusdb "freightline/internal/db/status"
	"freightline/internal/inventory"
	"freightline/internal/orders"
	"freightline/internal/shipping"
	"freightline/internal/status"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// stores bundles the persistence layer behind the domain interfaces.
// Without DATABASE_URL everything stays in memory, which is how the tests
// and the single-binary demo mode run.
type stores struct {
	inventory inventory.Store
	orders    orders.Store
	shipping  shipping.Store
	status    status.RecordStore
	cleanup   func()
}

func buildStores(ctx context.Context, logger *zap.Logger) (*stores, error) {
	url := config.DatabaseURL()
	if url == "" {
		logger.Info("DATABASE_URL not set, using in-memory stores")
		return &stores{
			inventory: inventory.NewMemoryStore(),
			orders:    orders.NewMemoryStore(),
			shipping:  shipping.NewMemoryStore(),
			status:    status.NewMemoryStore(),
			cleanup:   func() {},
		}, nil
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	inventoryStore, err := inventorydb.NewStoreWithSchema(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("inventory schema: %w", err)
	}
	orderStore, err := ordersdb.NewStoreWithSchema(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("orders schema: %w", err)
	}
	shippingStore, err := shippingdb.NewStoreWithSchema(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("shipping schema: %w", err)
	}
	statusStore, err := statusdb.NewStoreWithSchema(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("status schema: %w", err)
	}

	logger.Info("connected to postgres")
	return &stores{
		inventory: inventoryStore,
		orders:    orderStore,
		shipping:  shippingStore,
		status:    statusStore,
		cleanup:   func() { db.Close() },
	}, nil
}
