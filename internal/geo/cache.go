package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trafficwatch/internal/domain"
)

type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (domain.Geolocation, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Geolocation{}, false, nil
	}
	if err != nil {
		return domain.Geolocation{}, false, fmt.Errorf("geo: redis get: %w", err)
	}

	var geo domain.Geolocation
	if err := json.Unmarshal(raw, &geo); err != nil {
		return domain.Geolocation{}, false, fmt.Errorf("geo: decode cached payload: %w", err)
	}
	return geo, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, geo domain.Geolocation, ttl time.Duration) error {
	payload, err := json.Marshal(geo)
	if err != nil {
		return fmt.Errorf("geo: encode payload: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("geo: redis set: %w", err)
	}
	return nil
}

type memoryEntry struct {
	geo     domain.Geolocation
	expires time.Time
}

// MemoryCache is a process-local Cache for single-instance deployments.
type MemoryCache struct {
	entries sync.Map
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (domain.Geolocation, bool, error) {
	raw, ok := c.entries.Load(key)
	if !ok {
		return domain.Geolocation{}, false, nil
	}
	entry := raw.(memoryEntry)
	if !c.now().Before(entry.expires) {
		c.entries.CompareAndDelete(key, raw)
		return domain.Geolocation{}, false, nil
	}
	return entry.geo, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, geo domain.Geolocation, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.entries.Store(key, memoryEntry{geo: geo, expires: c.now().Add(ttl)})
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	removed := 0
	c.entries.Range(func(key, value any) bool {
		if !now.Before(value.(memoryEntry).expires) {
			if c.entries.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed
}
