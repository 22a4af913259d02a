// Package projector folds the order-status stream into a latest-status view
// keyed by order id and republishes every update. The view is a cache; the
// status ledger stays authoritative.
package projector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"freightline/internal/bus"
	"freightline/internal/events"
)

// StateStore keeps the latest status per order id key. Keys are the string
// form of the order id, which may be negative.
type StateStore interface {
	Put(ctx context.Context, key string, ev events.OrderStatusEvent) error
	Get(ctx context.Context, key string) (events.OrderStatusEvent, bool, error)
}

// Notifier receives every projected update, typically a websocket hub.
type Notifier interface {
	BroadcastStatus(ev events.OrderStatusEvent)
}

// Projector consumes order-status and maintains the latest view. Since the
// bus delivers one partition sequentially and all events for one order id
// share a key, last write wins equals logical event order.
type Projector struct {
	store     StateStore
	publisher bus.Publisher
	notifier  Notifier
	logger    *zap.Logger
}

// NewProjector constructs a projector. notifier may be nil.
func NewProjector(store StateStore, publisher bus.Publisher, notifier Notifier, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
	}
}

// HandleOrderStatus updates the view for one status event and republishes
// the payload unchanged on latest-order-status under the same key.
func (p *Projector) HandleOrderStatus(ctx context.Context, msg bus.Message) error {
	ev, err := events.DecodeOrderStatus(msg.Value)
	if err != nil {
		return fmt.Errorf("order-status key %q: %w", msg.Key, err)
	}

	if err := p.store.Put(ctx, msg.Key, ev); err != nil {
		return fmt.Errorf("store latest status for %q: %w", msg.Key, err)
	}
	if err := p.publisher.Publish(ctx, bus.TopicLatestOrderStatus, msg.Key, msg.Value); err != nil {
		return fmt.Errorf("publish latest-order-status: %w", err)
	}

	if p.notifier != nil {
		p.notifier.BroadcastStatus(ev)
	}
	p.logger.Debug("latest status updated",
		zap.String("key", msg.Key),
		zap.String("status", ev.Status),
	)
	return nil
}

// Latest returns the current view for an order id key.
func (p *Projector) Latest(ctx context.Context, key string) (events.OrderStatusEvent, bool, error) {
	return p.store.Get(ctx, key)
}

// NewMemoryStateStore constructs an in-memory latest-status store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{latest: make(map[string]events.OrderStatusEvent)}
}

// MemoryStateStore keeps the latest view in a map.
type MemoryStateStore struct {
	mu     sync.RWMutex
	latest map[string]events.OrderStatusEvent
}

func (s *MemoryStateStore) Put(ctx context.Context, key string, ev events.OrderStatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[key] = ev
	return nil
}

func (s *MemoryStateStore) Get(ctx context.Context, key string) (events.OrderStatusEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.latest[key]
	return ev, ok, nil
}
