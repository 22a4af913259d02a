package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"freightline/internal/bus"
	"freightline/internal/events"
	"freightline/internal/inventory"
)

// ErrInventoryUnavailable is returned when the ledger rejects the order or
// cannot be reached. The order is not persisted in that case; the failure
// travels to the status ledger via the inventory dead-letter topic.
var ErrInventoryUnavailable = errors.New("inventory unavailable for order")

// Intake accepts orders into the saga.
type Intake struct {
	store     Store
	checker   inventory.Checker
	publisher bus.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewIntake constructs an Intake service.
func NewIntake(store Store, checker inventory.Checker, publisher bus.Publisher, logger *zap.Logger) *Intake {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Intake{
		store:     store,
		checker:   checker,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates the request, reserves inventory, persists the order and
// publishes order-submitted. On inventory failure nothing is persisted (no
// real id exists yet); the payload goes to order-inventory-dlt keyed by the
// correlation key so the status ledger can still track the failure.
//
// A nil error means the order entered the saga, not that it will ship.
func (i *Intake) Submit(ctx context.Context, req SubmitRequest) (Order, error) {
	if err := req.Validate(); err != nil {
		return Order{}, err
	}

	items := make([]inventory.ItemRequest, len(req.Items))
	for n, item := range req.Items {
		items[n] = inventory.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	if err := i.checker.Check(ctx, items); err != nil {
		i.logger.Warn("inventory check failed",
			zap.String("customer_id", req.CustomerID),
			zap.Error(err),
		)
		i.publishInventoryFailure(ctx, req)
		return Order{}, fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
	}

	order := Order{
		CustomerID:         req.CustomerID,
		DestinationCountry: req.DestinationCountry,
		CreatedAt:          i.now().UTC(),
		Items:              req.Items,
	}
	order, err := i.store.Save(ctx, order)
	if err != nil {
		return Order{}, fmt.Errorf("save order: %w", err)
	}
	i.logger.Info("order persisted", zap.Int64("order_id", order.ID))

	payload, err := events.Encode(submittedEvent(order))
	if err != nil {
		return Order{}, fmt.Errorf("encode order event: %w", err)
	}
	key := strconv.FormatInt(order.ID, 10)
	if err := i.publisher.Publish(ctx, bus.TopicOrderSubmitted, key, payload); err != nil {
		return Order{}, fmt.Errorf("publish order-submitted: %w", err)
	}

	return order, nil
}

func (i *Intake) publishInventoryFailure(ctx context.Context, req SubmitRequest) {
	key := req.CorrelationKey
	if key == "" {
		key = uuid.NewString()
	}

	items := make([]events.OrderItem, len(req.Items))
	for n, item := range req.Items {
		items[n] = events.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	payload, err := events.Encode(events.OrderSubmitted{
		CustomerID:         req.CustomerID,
		DestinationCountry: req.DestinationCountry,
		CreatedAt:          i.now().UTC(),
		Items:              items,
	})
	if err != nil {
		i.logger.Error("encode inventory failure event", zap.Error(err))
		return
	}
	// Best effort: the synchronous caller already gets the failure; this
	// publish only feeds the audit trail.
	if err := i.publisher.Publish(ctx, bus.TopicOrderInventoryDLT, key, payload); err != nil {
		i.logger.Error("publish order-inventory-dlt", zap.String("key", key), zap.Error(err))
	}
}

func submittedEvent(order Order) events.OrderSubmitted {
	items := make([]events.OrderItem, len(order.Items))
	for n, item := range order.Items {
		items[n] = events.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return events.OrderSubmitted{
		OrderID:            order.ID,
		CustomerID:         order.CustomerID,
		DestinationCountry: order.DestinationCountry,
		CreatedAt:          order.CreatedAt,
		Items:              items,
	}
}
