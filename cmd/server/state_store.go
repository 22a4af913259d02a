package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"freightline/cmd/server/config"
	"freightline/internal/projector"
)

// buildStateStore returns the latest-status store: Redis when configured,
// in-memory otherwise.
func buildStateStore(ctx context.Context, logger *zap.Logger) (projector.StateStore, func(), error) {
	cfg, enabled, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}
	if !enabled {
		logger.Info("REDIS_URL not set, latest-status view stays in memory")
		return projector.NewMemoryStateStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.HealthcheckTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("connected to redis", zap.String("stream", cfg.Stream))
	store := projector.NewRedisStateStore(redisClientAdapter{client: client}, cfg.Stream, cfg.StatusTTL, cfg.StreamMaxLen)
	return store, func() { client.Close() }, nil
}

type redisClientAdapter struct {
	client *redis.Client
}

func (a redisClientAdapter) Pipeline() projector.RedisPipeliner {
	return redisPipelineAdapter{pipe: a.client.Pipeline()}
}

func (a redisClientAdapter) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	return a.client.HGetAll(ctx, key)
}

type redisPipelineAdapter struct {
	pipe redis.Pipeliner
}

func (a redisPipelineAdapter) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	return a.pipe.HSet(ctx, key, values...)
}

func (a redisPipelineAdapter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return a.pipe.Expire(ctx, key, expiration)
}

func (a redisPipelineAdapter) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	return a.pipe.XAdd(ctx, args)
}

func (a redisPipelineAdapter) Exec(ctx context.Context) ([]redis.Cmder, error) {
	return a.pipe.Exec(ctx)
}
