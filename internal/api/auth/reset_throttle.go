package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

var (
	_ ResetThrottle = (*MemoryThrottle)(nil)
	_ ResetThrottle = (*RedisThrottle)(nil)
)

// ResetThrottle limits how often a reset email is sent for one address.
type ResetThrottle interface {
	// Allow reports whether key may proceed and, if so, starts its cooldown.
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryThrottle keeps cooldowns in process memory.
type MemoryThrottle struct {
	window time.Duration
	c      *cache.Cache
}

func NewMemoryThrottle(window time.Duration) *MemoryThrottle {
	return &MemoryThrottle{
		window: window,
		c:      cache.New(window, 2*window+time.Minute),
	}
}

func (t *MemoryThrottle) Allow(_ context.Context, key string) (bool, error) {
	if t.window <= 0 {
		return true, nil
	}
	// Add fails if the key is present and unexpired, which makes the
	// check-and-set atomic.
	if err := t.c.Add(key, struct{}{}, t.window); err != nil {
		return false, nil
	}
	return true, nil
}

// RedisThrottle shares cooldowns across instances.
type RedisThrottle struct {
	client *redis.Client
	window time.Duration
	prefix string
}

func NewRedisThrottle(client *redis.Client, window time.Duration, prefix string) *RedisThrottle {
	if prefix == "" {
		prefix = "pwreset"
	}
	return &RedisThrottle{client: client, window: window, prefix: prefix}
}

// Allow fails open on Redis errors so an outage does not block recovery.
func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	if t.window <= 0 {
		return true, nil
	}
	ok, err := t.client.SetNX(ctx, fmt.Sprintf("%s:%s", t.prefix, key), 1, t.window).Result()
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return ok, nil
}
