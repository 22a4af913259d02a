package projector

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"freightline/internal/events"
)

// RedisStateStore keeps the latest status per order in a Redis hash and
// appends every update to a stream for external consumers.
type RedisStateStore struct {
	client    RedisClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// RedisClient is the minimal client surface used by RedisStateStore.
type RedisClient interface {
	Pipeline() RedisPipeliner
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisPipeliner is the subset of commands used within a pipeline.
type RedisPipeliner interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Exec(ctx context.Context) ([]redis.Cmder, error)
}

// NewRedisStateStore constructs a Redis-backed latest-status store.
func NewRedisStateStore(client RedisClient, stream string, ttl time.Duration, maxLen int64) *RedisStateStore {
	if stream == "" {
		stream = "order_status_events"
	}
	return &RedisStateStore{
		client:    client,
		stream:    stream,
		keyPrefix: "order-status:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

// Put writes the latest status hash and appends to the stream in one
// pipeline round trip.
func (r *RedisStateStore) Put(ctx context.Context, key string, ev events.OrderStatusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hashKey := r.keyPrefix + key
	timestamp := ev.Timestamp.UTC().Format(time.RFC3339Nano)
	fields := map[string]any{
		"order_id":    ev.OrderID,
		"customer_id": ev.CustomerID,
		"status":      ev.Status,
		"message":     ev.Message,
		"destination": ev.Destination,
		"ship_id":     ev.ShipID,
		"timestamp":   timestamp,
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, hashKey, fields)
	if r.ttl > 0 {
		pipe.Expire(ctx, hashKey, r.ttl)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: fields,
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	_, err := pipe.Exec(ctx)
	return err
}

// Get reads the latest status hash for one order id key.
func (r *RedisStateStore) Get(ctx context.Context, key string) (events.OrderStatusEvent, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.keyPrefix+key).Result()
	if err != nil {
		return events.OrderStatusEvent{}, false, err
	}
	if len(fields) == 0 {
		return events.OrderStatusEvent{}, false, nil
	}

	ev := events.OrderStatusEvent{
		CustomerID:  fields["customer_id"],
		Status:      fields["status"],
		Message:     fields["message"],
		Destination: fields["destination"],
	}
	ev.OrderID, _ = strconv.ParseInt(fields["order_id"], 10, 64)
	ev.ShipID, _ = strconv.ParseInt(fields["ship_id"], 10, 64)
	if ts, parseErr := time.Parse(time.RFC3339Nano, fields["timestamp"]); parseErr == nil {
		ev.Timestamp = ts
	}
	return ev, true, nil
}
