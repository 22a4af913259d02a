// Package bus defines the message-bus surface the saga runs on and two
// implementations: an in-process partitioned bus and a Kafka adapter.
// The broker contract everywhere is the same: ordered delivery within a
// partition, at-least-once semantics, independent consumer groups.
package bus

import (
	"context"
	"errors"
)

// Saga topics.
const (
	TopicOrderSubmitted    = "order-submitted"
	TopicOrderInventoryDLT = "order-inventory-dlt"
	TopicShipmentCreated   = "shipment-created"
	TopicUnassignedOrders  = "unassigned-shipping-orders"
	TopicOrderStatus       = "order-status"
	TopicLatestOrderStatus = "latest-order-status"
)

// DeadLetterTopic returns the conventional dead-letter destination for a topic.
func DeadLetterTopic(topic string) string {
	return topic + "-dlt"
}

// Message is one delivered record. Key determines the partition, so all
// messages for one order stay ordered relative to each other.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Handler processes one message. A non-nil error signals the delivery
// failed; what happens next (retry, dead-letter) is the wrapper's concern.
type Handler func(ctx context.Context, msg Message) error

// Publisher publishes a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Subscriber registers a handler for a (topic, consumer group) pair.
// Every group receives every message; within a group each partition is
// processed by exactly one worker at a time.
type Subscriber interface {
	Subscribe(topic, group string, h Handler) error
}

// Bus combines publishing and subscribing.
type Bus interface {
	Publisher
	Subscriber
}

// ErrClosed is returned by Publish after the bus has shut down.
var ErrClosed = errors.New("bus closed")
