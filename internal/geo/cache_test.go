package geo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficwatch/internal/domain"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCache(client)
	ctx := context.Background()

	_, found, err := cache.Get(ctx, "trafficwatch:geo:203.0.113.5")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "trafficwatch:geo:203.0.113.5", berlin(), 24*time.Hour))
	assert.Equal(t, 24*time.Hour, server.TTL("trafficwatch:geo:203.0.113.5"))

	geo, found, err := cache.Get(ctx, "trafficwatch:geo:203.0.113.5")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, berlin(), geo)

	server.FastForward(25 * time.Hour)
	_, found, err = cache.Get(ctx, "trafficwatch:geo:203.0.113.5")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCacheFailureMarker(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCache(client)
	require.NoError(t, cache.Set(context.Background(), "k", domain.Geolocation{}, time.Minute))

	raw, err := server.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)

	geo, found, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, geo.IsEmpty())
}

func TestRedisCacheUnavailable(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	server.Close()

	_, _, err := NewRedisCache(client).Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryCacheSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(context.Background(), "short", berlin(), time.Minute))
	require.NoError(t, cache.Set(context.Background(), "long", berlin(), time.Hour))
	require.NoError(t, cache.Set(context.Background(), "never", berlin(), 0))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, cache.Sweep())

	_, found, _ := cache.Get(context.Background(), "long")
	assert.True(t, found)
	_, found, _ = cache.Get(context.Background(), "never")
	assert.False(t, found)
}
