package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"freightline/internal/observability"
)

// KafkaBus adapts the Bus surface onto a Kafka cluster. Writers hash the
// message key so one order always lands on one partition; readers join a
// consumer group per subscription.
type KafkaBus struct {
	brokers []string
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	subs    []kafkaSub
	closed  bool
}

type kafkaSub struct {
	topic   string
	group   string
	handler Handler
}

// NewKafkaBus constructs a KafkaBus for the given brokers.
func NewKafkaBus(brokers []string, logger *zap.Logger, metrics *observability.Metrics) *KafkaBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaBus{
		brokers: brokers,
		logger:  logger,
		metrics: metrics,
		writers: make(map[string]*kafka.Writer),
	}
}

func (b *KafkaBus) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:         kafka.TCP(b.brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
		b.writers[topic] = w
	}
	return w
}

// Publish writes one keyed message to the topic.
func (b *KafkaBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	return b.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
}

// Subscribe registers a handler. Readers start on Run.
func (b *KafkaBus) Subscribe(topic, group string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.subs = append(b.subs, kafkaSub{topic: topic, group: group, handler: h})
	return nil
}

// Run starts one consumer-group reader per subscription and blocks until
// the context ends. Handler errors are logged and the offset is committed
// anyway; bounded failure handling belongs to the Router wrapper.
func (b *KafkaBus) Run(ctx context.Context) error {
	b.mu.Lock()
	subs := make([]kafkaSub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub kafkaSub) {
			defer wg.Done()
			b.consume(ctx, sub)
		}(sub)
	}
	wg.Wait()
	return nil
}

func (b *KafkaBus) consume(ctx context.Context, sub kafkaSub) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    sub.topic,
		GroupID:  sub.group,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			b.logger.Error("close kafka reader", zap.String("topic", sub.topic), zap.Error(err))
		}
	}()

	b.logger.Info("kafka consumer started",
		zap.String("topic", sub.topic),
		zap.String("group", sub.group),
	)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				b.logger.Info("kafka consumer stopping", zap.String("topic", sub.topic))
				return
			}
			b.logger.Error("kafka read failed", zap.String("topic", sub.topic), zap.Error(err))
			continue
		}

		start := time.Now()
		handlerErr := sub.handler(ctx, Message{
			Topic: sub.topic,
			Key:   string(msg.Key),
			Value: msg.Value,
		})
		b.metrics.ObserveConsume(sub.topic, time.Since(start), handlerErr)
		if handlerErr != nil {
			b.logger.Error("message handler failed",
				zap.String("topic", sub.topic),
				zap.String("group", sub.group),
				zap.ByteString("key", msg.Key),
				zap.Error(handlerErr),
			)
		}
	}
}

// Close flushes and closes all writers.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for topic, w := range b.writers {
		if err := w.Close(); err != nil {
			b.logger.Error("close kafka writer", zap.String("topic", topic), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
