package bus

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"freightline/internal/observability"
)

const defaultPartitions = 8

// LocalBus is an in-process bus with broker semantics: messages are
// partitioned by key hash, each (group, partition) pair is drained by a
// single goroutine in publish order, and every subscribed group sees every
// message. It backs tests and the single-binary deployment mode.
type LocalBus struct {
	partitions int
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu     sync.Mutex
	subs   map[string][]*localSub // topic -> group subscriptions
	closed bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending atomic.Int64
}

type localSub struct {
	group   string
	handler Handler
	queues  []chan Message
}

// LocalOption tweaks LocalBus construction.
type LocalOption func(*LocalBus)

// WithPartitions overrides the partition count.
func WithPartitions(n int) LocalOption {
	return func(b *LocalBus) {
		if n > 0 {
			b.partitions = n
		}
	}
}

// WithMetrics attaches consumption metrics.
func WithMetrics(m *observability.Metrics) LocalOption {
	return func(b *LocalBus) { b.metrics = m }
}

// NewLocalBus constructs a LocalBus. Delivery goroutines start on Subscribe
// and run until Close.
func NewLocalBus(logger *zap.Logger, opts ...LocalOption) *LocalBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &LocalBus{
		partitions: defaultPartitions,
		logger:     logger,
		subs:       make(map[string][]*localSub),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic under a consumer group and
// starts one delivery goroutine per partition.
func (b *LocalBus) Subscribe(topic, group string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	sub := &localSub{
		group:   group,
		handler: h,
		queues:  make([]chan Message, b.partitions),
	}
	for i := range sub.queues {
		sub.queues[i] = make(chan Message, 256)
	}
	b.subs[topic] = append(b.subs[topic], sub)

	for i := range sub.queues {
		queue := sub.queues[i]
		b.wg.Add(1)
		go b.drain(topic, sub, queue)
	}
	return nil
}

func (b *LocalBus) drain(topic string, sub *localSub, queue chan Message) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-queue:
			if !ok {
				return
			}
			start := time.Now()
			err := sub.handler(b.ctx, msg)
			b.pending.Add(-1)
			b.metrics.ObserveConsume(topic, time.Since(start), err)
			if err != nil {
				b.logger.Error("message handler failed",
					zap.String("topic", topic),
					zap.String("group", sub.group),
					zap.String("key", msg.Key),
					zap.Error(err),
				)
			}
		}
	}
}

// Publish routes the message to every group subscribed to the topic.
// It blocks when a partition queue is full, which gives natural
// backpressure instead of unbounded memory growth.
func (b *LocalBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := b.subs[topic]
	b.mu.Unlock()

	partition := b.partition(key)
	for _, sub := range subs {
		b.pending.Add(1)
		select {
		case sub.queues[partition] <- Message{Topic: topic, Key: key, Value: value}:
		case <-ctx.Done():
			b.pending.Add(-1)
			return ctx.Err()
		case <-b.ctx.Done():
			b.pending.Add(-1)
			return ErrClosed
		}
	}
	return nil
}

func (b *LocalBus) partition(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(b.partitions))
}

// Close stops delivery and waits for in-flight handlers to finish.
func (b *LocalBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			for _, q := range sub.queues {
				close(q)
			}
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
	b.cancel()
}

// Drained reports once every published message has been fully handled,
// including messages republished by handlers mid-flight. Test helper:
// publish, then poll Drained before asserting side effects.
func (b *LocalBus) Drained() bool {
	return b.pending.Load() == 0
}
