package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemoryLimiter() (*Limiter, *fakeClock, *MemoryStore) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	return NewLimiter(store, DefaultPolicy()), clock, store
}

func decideN(t *testing.T, limiter *Limiter, req Request, n int) []Decision {
	t.Helper()
	out := make([]Decision, 0, n)
	for i := 0; i < n; i++ {
		d, err := limiter.Decide(context.Background(), req)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestAnonymousLimit(t *testing.T) {
	limiter, clock, _ := newMemoryLimiter()
	req := Request{Key: AddressKey("203.0.113.5"), Group: "geo-test", Method: "GET"}

	decisions := decideN(t, limiter, req, 6)
	for i, d := range decisions[:5] {
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, int64(5-(i+1)), d.Remaining)
	}

	denied := decisions[5]
	assert.False(t, denied.Allowed)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", denied.Message)
	assert.Equal(t, time.Minute, denied.RetryAfter)

	clock.Advance(30 * time.Second)
	d := decideN(t, limiter, req, 1)[0]
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	clock.Advance(30 * time.Second)
	assert.True(t, decideN(t, limiter, req, 1)[0].Allowed, "admission resumes after the window")
}

func TestAuthenticatedLimit(t *testing.T) {
	limiter, _, _ := newMemoryLimiter()
	req := Request{Key: UserKey("alice"), Group: "login", Method: "POST"}

	decisions := decideN(t, limiter, req, 11)
	for _, d := range decisions[:10] {
		assert.True(t, d.Allowed)
	}
	assert.False(t, decisions[10].Allowed)
	assert.Equal(t, "Too many login attempts. Please try again later.", decisions[10].Message)
}

func TestKeysAndGroupsAreIndependent(t *testing.T) {
	limiter, _, _ := newMemoryLimiter()

	decideN(t, limiter, Request{Key: AddressKey("203.0.113.5"), Group: "geo-test", Method: "GET"}, 5)

	assert.True(t, decideN(t, limiter, Request{Key: AddressKey("203.0.113.6"), Group: "geo-test", Method: "GET"}, 1)[0].Allowed)
	assert.True(t, decideN(t, limiter, Request{Key: AddressKey("203.0.113.5"), Group: "login", Method: "POST"}, 1)[0].Allowed)
}

func TestMethodOutsideGroupIsExempt(t *testing.T) {
	limiter, _, store := newMemoryLimiter()

	for _, d := range decideN(t, limiter, Request{Key: AddressKey("203.0.113.5"), Group: "login", Method: "GET"}, 20) {
		assert.True(t, d.Allowed)
		assert.True(t, d.Exempt)
	}
	assert.Zero(t, store.Prune(), "exempt requests must not create counters")
}

func TestUnknownGroup(t *testing.T) {
	limiter, _, _ := newMemoryLimiter()

	_, err := limiter.Decide(context.Background(), Request{Key: AddressKey("203.0.113.5"), Group: "nope"})
	require.ErrorIs(t, err, ErrUnknownGroup)
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestStoreFailureFailsOpen(t *testing.T) {
	limiter := NewLimiter(brokenStore{}, DefaultPolicy())

	d, err := limiter.Decide(context.Background(), Request{Key: AddressKey("203.0.113.5"), Group: "geo-test", Method: "GET"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestConcurrentDecisionsNeverOverAdmit(t *testing.T) {
	limiter, _, _ := newMemoryLimiter()
	req := Request{Key: UserKey("bob"), Group: "geo-test", Method: "GET"}

	var (
		allowed atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Decide(context.Background(), req)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

func TestRedisStoreFixedWindow(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewLimiter(NewRedisStore(client), DefaultPolicy())
	req := Request{Key: AddressKey("203.0.113.5"), Group: "geo-test", Method: "GET"}

	decisions := decideN(t, limiter, req, 6)
	for _, d := range decisions[:5] {
		assert.True(t, d.Allowed)
	}
	assert.False(t, decisions[5].Allowed)
	assert.Greater(t, decisions[5].RetryAfter, time.Duration(0))

	key := "trafficwatch:rl:geo-test:ip:203.0.113.5"
	assert.Equal(t, time.Minute, server.TTL(key))

	server.FastForward(61 * time.Second)
	assert.True(t, decideN(t, limiter, req, 1)[0].Allowed)
}

func TestRedisStoreUnavailableFailsOpen(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	server.Close()

	limiter := NewLimiter(NewRedisStore(client), DefaultPolicy())
	d, err := limiter.Decide(context.Background(), Request{Key: AddressKey("203.0.113.5"), Group: "geo-test", Method: "GET"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStorePrune(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now

	_, _, _ = store.Increment(context.Background(), "a", time.Minute)
	_, _, _ = store.Increment(context.Background(), "b", time.Hour)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.Prune())
}

func TestNewStore(t *testing.T) {
	store, err := NewStore("memory", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore("redis", nil)
	assert.Error(t, err)

	_, err = NewStore("etcd", nil)
	assert.Error(t, err)
}
