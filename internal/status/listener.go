package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"freightline/internal/bus"
	"freightline/internal/events"
)

// Listener fans every lifecycle topic into the ledger and republishes each
// transition on order-status. Publish failures are logged and swallowed:
// a broken notification must not stall the saga, the ledger row is already
// durable.
type Listener struct {
	ledger    *Ledger
	publisher bus.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewListener constructs the status listener.
func NewListener(ledger *Ledger, publisher bus.Publisher, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleOrderSubmitted records PROCESSING for a freshly submitted order.
func (l *Listener) HandleOrderSubmitted(ctx context.Context, msg bus.Message) error {
	ev, err := events.DecodeOrderSubmitted(msg.Value)
	if err != nil {
		return fmt.Errorf("order-submitted key %q: %w", msg.Key, err)
	}
	rec, err := l.ledger.Record(ctx, ev.OrderID, ev.CustomerID, Processing, l.now().UTC())
	if err != nil {
		return err
	}
	l.notify(ctx, rec, Processing, "order accepted for processing", ev.DestinationCountry, 0, l.eventTime(ev.CreatedAt))
	return nil
}

// HandleInventoryDLT records a terminal FAILED row under a synthetic
// negative id, since the order was rejected before intake persisted it.
// A payload that cannot be decoded still produces a best-effort row from
// the message key rather than crashing the consumer.
func (l *Listener) HandleInventoryDLT(ctx context.Context, msg bus.Message) error {
	ev, err := events.DecodeOrderSubmitted(msg.Value)
	if err != nil {
		l.logger.Warn("malformed inventory dead letter, recording from key",
			zap.String("key", msg.Key),
		)
		rec, recErr := l.ledger.Record(ctx, 0, msg.Key, Failed, l.now().UTC())
		if recErr != nil {
			return recErr
		}
		l.notify(ctx, rec, Failed, "inventory rejection with unreadable payload", "", 0, rec.CreatedAt)
		return nil
	}

	rec, err := l.ledger.Record(ctx, 0, ev.CustomerID, Failed, l.now().UTC())
	if err != nil {
		return err
	}
	l.notify(ctx, rec, Failed, "inventory unavailable", ev.DestinationCountry, 0, l.eventTime(ev.CreatedAt))
	return nil
}

// HandleShipmentCreated records SHIPPED.
func (l *Listener) HandleShipmentCreated(ctx context.Context, msg bus.Message) error {
	ev, err := events.DecodeShipmentCreated(msg.Value)
	if err != nil {
		return fmt.Errorf("shipment-created key %q: %w", msg.Key, err)
	}
	rec, err := l.ledger.Record(ctx, ev.OrderID, ev.CustomerID, Shipped, l.now().UTC())
	if err != nil {
		return err
	}
	l.notify(ctx, rec, Shipped,
		fmt.Sprintf("assigned to ship %d", ev.ShipID),
		ev.DestinationCountry, ev.ShipID, l.eventTime(ev.CreatedAt))
	return nil
}

// HandleUnassigned records NO_SHIP_AVAILABLE for a parked shipment.
func (l *Listener) HandleUnassigned(ctx context.Context, msg bus.Message) error {
	ev, err := events.DecodeShipmentCreated(msg.Value)
	if err != nil {
		return fmt.Errorf("unassigned-shipping-orders key %q: %w", msg.Key, err)
	}
	rec, err := l.ledger.Record(ctx, ev.OrderID, ev.CustomerID, NoShipAvailable, l.now().UTC())
	if err != nil {
		return err
	}
	l.notify(ctx, rec, NoShipAvailable, "awaiting ship capacity", ev.DestinationCountry, 0, l.eventTime(ev.CreatedAt))
	return nil
}

// HandleUnassignedDLT records the terminal NO_SHIP_AVAILABLE_DLT after
// retries are exhausted. Malformed payloads fall back to the order id in
// the message key so the terminal state is never silently dropped.
func (l *Listener) HandleUnassignedDLT(ctx context.Context, msg bus.Message) error {
	ev, err := events.DecodeShipmentCreated(msg.Value)
	if err != nil {
		orderID, parseErr := strconv.ParseInt(msg.Key, 10, 64)
		if parseErr != nil {
			orderID = 0
		}
		l.logger.Warn("malformed shipping dead letter, recording from key",
			zap.String("key", msg.Key),
		)
		rec, recErr := l.ledger.Record(ctx, orderID, "", NoShipAvailableDLT, l.now().UTC())
		if recErr != nil {
			return recErr
		}
		l.notify(ctx, rec, NoShipAvailableDLT, "dead-lettered with unreadable payload", "", 0, rec.CreatedAt)
		return nil
	}

	rec, err := l.ledger.Record(ctx, ev.OrderID, ev.CustomerID, NoShipAvailableDLT, l.now().UTC())
	if err != nil {
		return err
	}
	l.notify(ctx, rec, NoShipAvailableDLT, "retries exhausted, manual processing required", ev.DestinationCountry, 0, l.eventTime(ev.CreatedAt))
	return nil
}

// eventTime picks the originating event's timestamp for the notification;
// ledger rows are stamped at observation time instead, so two transitions
// for one order never share a row timestamp just because the events do.
func (l *Listener) eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return l.now().UTC()
	}
	return t
}

func (l *Listener) notify(ctx context.Context, rec Record, st Status, message, destination string, shipID int64, ts time.Time) {
	payload, err := events.Encode(events.OrderStatusEvent{
		OrderID:     rec.OrderID,
		CustomerID:  rec.CustomerID,
		Status:      string(st),
		Message:     message,
		Destination: destination,
		ShipID:      shipID,
		Timestamp:   ts,
	})
	if err != nil {
		l.logger.Error("encode status notification", zap.Error(err))
		return
	}
	key := strconv.FormatInt(rec.OrderID, 10)
	if err := l.publisher.Publish(ctx, bus.TopicOrderStatus, key, payload); err != nil {
		l.logger.Error("publish order-status",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
