package shipping

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"freightline/internal/bus"
	"freightline/internal/events"
)

// Consumer turns order events into shipment events. It handles two topics:
// order-submitted for fresh orders and unassigned-shipping-orders for
// orders that found no ship on the first pass.
type Consumer struct {
	engine    *Engine
	publisher bus.Publisher
	logger    *zap.Logger
}

// NewConsumer constructs the shipment consumer.
func NewConsumer(engine *Engine, publisher bus.Publisher, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{engine: engine, publisher: publisher, logger: logger}
}

// HandleOrderSubmitted assigns a ship to the submitted order. When no ship
// serves the destination the shipment is parked on unassigned-shipping-orders
// with a zero ship id instead of failing the message, so the order keeps a
// place in the saga while capacity catches up.
func (c *Consumer) HandleOrderSubmitted(ctx context.Context, msg bus.Message) error {
	order, err := events.DecodeOrderSubmitted(msg.Value)
	if err != nil {
		return fmt.Errorf("order-submitted key %q: %w", msg.Key, err)
	}

	res, err := c.engine.Assign(ctx, order.OrderID, order.DestinationCountry)
	if errors.Is(err, ErrNoShipAvailable) {
		return c.publishShipment(ctx, events.ShipmentCreated{
			ShipmentID:         uuid.NewString(),
			OrderID:            order.OrderID,
			CustomerID:         order.CustomerID,
			DestinationCountry: order.DestinationCountry,
			CreatedAt:          order.CreatedAt,
		}, bus.TopicUnassignedOrders)
	}
	if err != nil {
		return err
	}

	return c.publishShipment(ctx, events.ShipmentCreated{
		ShipmentID:         uuid.NewString(),
		OrderID:            order.OrderID,
		CustomerID:         order.CustomerID,
		DestinationCountry: order.DestinationCountry,
		ShipID:             res.Ship.ShipID,
		DepartureDate:      res.Ship.DepartureDate,
		CreatedAt:          order.CreatedAt,
	}, bus.TopicShipmentCreated)
}

// HandleUnassigned retries assignment for a parked shipment. A persistent
// lack of capacity surfaces as an error so the surrounding retry wrapper
// can back off and eventually dead-letter the shipment.
func (c *Consumer) HandleUnassigned(ctx context.Context, msg bus.Message) error {
	shipment, err := events.DecodeShipmentCreated(msg.Value)
	if err != nil {
		return fmt.Errorf("unassigned-shipping-orders key %q: %w", msg.Key, err)
	}

	res, err := c.engine.Assign(ctx, shipment.OrderID, shipment.DestinationCountry)
	if err != nil {
		return err
	}

	shipment.ShipID = res.Ship.ShipID
	shipment.DepartureDate = res.Ship.DepartureDate
	c.logger.Info("parked shipment assigned",
		zap.Int64("order_id", shipment.OrderID),
		zap.Int64("ship_id", shipment.ShipID),
	)
	return c.publishShipment(ctx, shipment, bus.TopicShipmentCreated)
}

func (c *Consumer) publishShipment(ctx context.Context, shipment events.ShipmentCreated, topic string) error {
	payload, err := events.Encode(shipment)
	if err != nil {
		return fmt.Errorf("encode shipment: %w", err)
	}
	key := strconv.FormatInt(shipment.OrderID, 10)
	if err := c.publisher.Publish(ctx, topic, key, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
