// Package realtime pushes latest-order-status updates to WebSocket clients.
package realtime

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"freightline/internal/events"
)

// Hub manages WebSocket clients and fans status updates out to them. It
// implements the projector's Notifier, so every projected update reaches
// connected dashboards without polling.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	broadcast   chan []byte
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewHub constructs a Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		broadcast:   make(chan []byte, 64),
		logger:      logger,
	}
}

// BroadcastStatus queues a status update for all connected clients. A full
// queue drops the update: the feed is a convenience view and slow clients
// must not stall the projector.
func (h *Hub) BroadcastStatus(ev events.OrderStatusEvent) {
	payload, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("encode status broadcast", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("status broadcast dropped, queue full",
			zap.Int64("order_id", ev.OrderID),
		)
	}
}

// Run processes register/unregister/broadcast events until ctx is done,
// then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		conn.Close()
		delete(h.connections, conn)
	}
}
