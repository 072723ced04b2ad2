package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps a go-redis client with the few operations the broker
// needs.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to url, which is either a redis:// URL or a bare
// host:port address.
func NewRedisClient(url string) (*RedisClient, error) {
	if url == "" {
		url = "localhost:6379"
	}

	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url}
	}

	return &RedisClient{client: redis.NewClient(opts)}, nil
}

// Ping checks the connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// IncrWindow increments the counter at key. The first increment in a
// window sets its expiry. It returns the new count and when the window
// resets.
func (r *RedisClient) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if n == 1 {
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return n, time.Now().Add(window), nil
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// A counter without expiry would never reset.
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		ttl = window
	}
	return n, time.Now().Add(ttl), nil
}

// Close closes the underlying connection pool.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
