package bus

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"freightline/internal/observability"
	"freightline/internal/reliability"
)

// Router wraps handlers with bounded retries and dead-letter forwarding.
// Retrying happens in place, which deliberately blocks the partition the
// message arrived on: per-key ordering survives redelivery, and unrelated
// keys on other partitions keep flowing.
type Router struct {
	publisher Publisher
	policy    reliability.RetryPolicy
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// DefaultRetryPolicy matches the saga's bounded-retry contract: three
// attempts with doubling backoff.
func DefaultRetryPolicy() reliability.RetryPolicy {
	return reliability.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// NewRouter constructs a Router. The publisher receives dead-lettered
// messages; policy bounds the attempts.
func NewRouter(publisher Publisher, policy reliability.RetryPolicy, logger *zap.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		publisher: publisher,
		policy:    policy,
		logger:    logger,
		metrics:   metrics,
	}
}

// Wrap returns a handler that retries h per the policy and, once attempts
// are exhausted, forwards the original message unmodified to the topic's
// dead-letter destination. A dead-lettered message counts as consumed.
func (r *Router) Wrap(h Handler) Handler {
	return func(ctx context.Context, msg Message) error {
		err := r.retry(ctx, msg, h)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// Shutdown, not exhaustion. Leave the message for redelivery.
			return err
		}

		dlt := DeadLetterTopic(msg.Topic)
		if pubErr := r.publisher.Publish(ctx, dlt, msg.Key, msg.Value); pubErr != nil {
			return fmt.Errorf("dead-letter %s: %w (original error: %v)", dlt, pubErr, err)
		}
		r.metrics.AddDeadLetter(msg.Topic)
		r.logger.Warn("message dead-lettered",
			zap.String("topic", msg.Topic),
			zap.String("dlt", dlt),
			zap.String("key", msg.Key),
			zap.Error(err),
		)
		return nil
	}
}

// WrapTerminal returns a handler that retries h per the policy but never
// forwards anywhere on exhaustion. This is for consumers of dead-letter
// topics themselves: forwarding would mint a dead-letter topic for a
// dead-letter topic, so the final error surfaces to the bus instead.
func (r *Router) WrapTerminal(h Handler) Handler {
	return func(ctx context.Context, msg Message) error {
		return r.retry(ctx, msg, h)
	}
}

func (r *Router) retry(ctx context.Context, msg Message, h Handler) error {
	attempt := 0
	return r.policy.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			r.metrics.AddRetry(msg.Topic)
			r.logger.Info("retrying message",
				zap.String("topic", msg.Topic),
				zap.String("key", msg.Key),
				zap.Int("attempt", attempt),
			)
		}
		return h(ctx, msg)
	})
}
