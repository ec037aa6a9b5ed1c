package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a typed JSON cache over Redis. Values are marshaled on Set
// and unmarshaled on Get; a missing key is ErrCacheMiss, never a zero
// value.
type Cache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a cache whose keys are namespaced under prefix.
func NewCache[T any](client *redis.Client, prefix string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache[T]) key(k string) string {
	return c.prefix + ":" + k
}

// Get retrieves a value. Returns ErrCacheMiss when the key is absent.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrCacheMiss
		}
		return zero, fmt.Errorf("cache get %s: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return value, nil
}

// Set stores a value with the cache's TTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// GetOrSet returns the cached value or loads, stores and returns a
// fresh one. A store failure does not fail the load; the value is
// served uncached.
func (c *Cache[T]) GetOrSet(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, bool, error) {
	value, err := c.Get(ctx, key)
	if err == nil {
		return value, true, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return value, false, err
	}

	value, err = load(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	_ = c.Set(ctx, key, value)
	return value, false, nil
}
