package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"freightline/internal/observability"
)

// Result is the outcome of one assignment attempt.
type Result struct {
	Assignment Assignment
	Ship       ShipTracking
	// Created is false when the order was already assigned and the stored
	// assignment was returned instead.
	Created bool
}

// Engine assigns orders to ships. It is safe for concurrent use as long as
// the Store honors its atomicity contract.
type Engine struct {
	store   Store
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewEngine constructs an assignment engine.
func NewEngine(store Store, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Assign binds the order to the least-loaded ship serving the destination.
// Redelivered orders get their existing assignment back with no side
// effects, which is what makes the consumer safe under at-least-once
// delivery.
func (e *Engine) Assign(ctx context.Context, orderID int64, destination string) (Result, error) {
	assignment, ship, created, err := e.store.Assign(ctx, orderID, destination, e.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNoShipAvailable) {
			e.metrics.AddAssignment(observability.OutcomeNoShip)
			e.logger.Warn("no ship available",
				zap.Int64("order_id", orderID),
				zap.String("destination", destination),
			)
		}
		return Result{}, fmt.Errorf("assign order %d: %w", orderID, err)
	}

	if !created {
		e.metrics.AddAssignment(observability.OutcomeDuplicate)
		e.logger.Info("order already assigned",
			zap.Int64("order_id", orderID),
			zap.Int64("ship_id", assignment.ShipID),
		)
		return Result{Assignment: assignment, Ship: ship}, nil
	}

	e.metrics.AddAssignment(observability.OutcomeAssigned)
	e.logger.Info("order assigned",
		zap.Int64("order_id", orderID),
		zap.Int64("ship_id", ship.ShipID),
		zap.String("destination", destination),
		zap.Int("ship_total_orders", ship.TotalOrders),
	)
	return Result{Assignment: assignment, Ship: ship, Created: true}, nil
}

// AddShip registers a new ship.
func (e *Engine) AddShip(ctx context.Context, ship ShipTracking) (ShipTracking, error) {
	added, err := e.store.AddShip(ctx, ship)
	if err != nil {
		return ShipTracking{}, fmt.Errorf("add ship: %w", err)
	}
	e.logger.Info("ship registered",
		zap.Int64("ship_id", added.ShipID),
		zap.String("destination", added.DestinationCountry),
	)
	return added, nil
}

// ListShips returns all registered ships.
func (e *Engine) ListShips(ctx context.Context) ([]ShipTracking, error) {
	return e.store.ListShips(ctx)
}
