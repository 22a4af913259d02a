package events

import (
	"encoding/json"
	"errors"
	"time"
)

// OrderItem is a single product line on an order event.
type OrderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderSubmitted is published by order intake once an order is persisted.
// The same shape travels on order-inventory-dlt for orders that never got
// a real id; there OrderID is zero and the message key carries the
// correlation key instead.
type OrderSubmitted struct {
	OrderID            int64       `json:"orderId"`
	CustomerID         string      `json:"customerId"`
	DestinationCountry string      `json:"destinationCountry"`
	CreatedAt          time.Time   `json:"createdAt"`
	Items              []OrderItem `json:"items"`
}

// ShipmentCreated travels on shipment-created and, with ShipID zero, on
// unassigned-shipping-orders and its dead-letter topic.
type ShipmentCreated struct {
	ShipmentID         string    `json:"shipmentId"`
	OrderID            int64     `json:"orderId"`
	CustomerID         string    `json:"customerId"`
	DestinationCountry string    `json:"destinationCountry"`
	ShipID             int64     `json:"shipId"`
	DepartureDate      time.Time `json:"departureDate"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Unassigned reports whether the shipment still lacks a ship.
func (s ShipmentCreated) Unassigned() bool {
	return s.ShipID == 0
}

// OrderStatusEvent is the per-transition notification on order-status.
// Status carries the enum name, not the stored code.
type OrderStatusEvent struct {
	OrderID     int64     `json:"orderId"`
	CustomerID  string    `json:"customerId"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Destination string    `json:"destination"`
	ShipID      int64     `json:"shipId"`
	Timestamp   time.Time `json:"timestamp"`
}

var ErrMalformedPayload = errors.New("malformed event payload")

// DecodeOrderSubmitted parses an order event payload, rejecting payloads
// that lack the fields every downstream consumer depends on.
func DecodeOrderSubmitted(data []byte) (OrderSubmitted, error) {
	var ev OrderSubmitted
	if err := json.Unmarshal(data, &ev); err != nil {
		return OrderSubmitted{}, ErrMalformedPayload
	}
	if ev.CustomerID == "" || ev.DestinationCountry == "" {
		return OrderSubmitted{}, ErrMalformedPayload
	}
	return ev, nil
}

// DecodeShipmentCreated parses a shipment event payload.
func DecodeShipmentCreated(data []byte) (ShipmentCreated, error) {
	var ev ShipmentCreated
	if err := json.Unmarshal(data, &ev); err != nil {
		return ShipmentCreated{}, ErrMalformedPayload
	}
	if ev.OrderID == 0 || ev.CustomerID == "" {
		return ShipmentCreated{}, ErrMalformedPayload
	}
	return ev, nil
}

// DecodeOrderStatus parses an order-status payload.
func DecodeOrderStatus(data []byte) (OrderStatusEvent, error) {
	var ev OrderStatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return OrderStatusEvent{}, ErrMalformedPayload
	}
	if ev.Status == "" {
		return OrderStatusEvent{}, ErrMalformedPayload
	}
	return ev, nil
}

// Encode marshals an event for publishing.
func Encode(ev any) ([]byte, error) {
	return json.Marshal(ev)
}
