package ratelimit

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewStore returns the counter store named by backend ("redis" or "memory").
func NewStore(backend string, client redis.UniversalClient) (Store, error) {
	switch backend {
	case "redis", "":
		if client == nil {
			return nil, errors.New("ratelimit: redis backend selected without a redis client")
		}
		return NewRedisStore(client), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", backend)
	}
}
