// Package redis wraps the go-redis client for the few operations the
// service needs: health pings and fixed-window counters.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin wrapper around a go-redis client.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to the server described by url
// (redis://[:password@]host:port/db).
func NewRedisClient(url string) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisClient{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// IncrWindow increments the counter at key, starting a window of the given
// length on the first hit. It returns the count within the current window and
// the time until the window resets.
func (r *RedisClient) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	reset := ttl.Val()
	if reset < 0 {
		reset = window
	}
	return incr.Val(), reset, nil
}

// Close closes the underlying connection pool.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
