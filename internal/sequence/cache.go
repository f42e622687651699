package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Cache holds the last value issued per counter for the allocator's lifetime.
type Cache interface {
	Get(ctx context.Context, name string) (int64, bool, error)
	Set(ctx context.Context, name string, value int64) error
	Delete(ctx context.Context, name string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: make(map[string]int64)}
}

func (c *MemoryCache) Get(_ context.Context, name string) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, name string, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, name)
	return nil
}

const redisKeyPrefix = "sequence"

// RedisCache shares the last issued values between processes.
type RedisCache struct {
	redis redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{redis: client}
}

func (c *RedisCache) Get(ctx context.Context, name string) (int64, bool, error) {
	v, err := c.redis.Get(ctx, redisKey(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", name, err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, name string, value int64) error {
	if err := c.redis.Set(ctx, redisKey(name), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, name string) error {
	if err := c.redis.Del(ctx, redisKey(name)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", name, err)
	}
	return nil
}

func redisKey(name string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, name)
}
