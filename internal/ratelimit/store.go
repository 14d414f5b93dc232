package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trafficwatch/internal/support"
)

// Store increments a fixed-window counter and reports the post-increment
// count and the time left in the window. Increments must be atomic.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}`)

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: redis increment: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

const shardCount = 64

type windowCounter struct {
	count   int64
	resetAt time.Time
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
}

// MemoryStore keeps counters in process, spread over mutex-guarded shards.
type MemoryStore struct {
	shards [shardCount]shard
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].counters = make(map[string]*windowCounter)
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	return &s.shards[support.HashString(key)%shardCount]
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	counter, ok := sh.counters[key]
	if !ok {
		counter = &windowCounter{}
		sh.counters[key] = counter
	}
	if !now.Before(counter.resetAt) {
		counter.count = 0
		counter.resetAt = now.Add(window)
	}
	counter.count++

	return counter.count, counter.resetAt.Sub(now), nil
}

// Prune drops counters whose window has ended.
func (s *MemoryStore) Prune() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, counter := range sh.counters {
			if !now.Before(counter.resetAt) {
				delete(sh.counters, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
