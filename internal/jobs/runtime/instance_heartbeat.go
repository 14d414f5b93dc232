package runtime

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	InstanceHeartbeatKeyPrefix = "trafficwatch:instance:"
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultHeartbeatTTL        = 30 * time.Second
)

var instanceID = uuid.NewString()

// InstanceID identifies this process in heartbeats and logs.
func InstanceID() string {
	return instanceID
}

func StartInstanceHeartbeat(ctx context.Context, client redis.UniversalClient, keyPrefix string, interval, ttl time.Duration) {
	heartbeatKey := keyPrefix + instanceID

	sendHeartbeat := func() {
		if err := client.Set(ctx, heartbeatKey, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil && ctx.Err() == nil {
			log.Error("Failed to update instance heartbeat", "key", heartbeatKey, "error", err)
		}
	}

	sendHeartbeat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			_ = client.Del(cleanup, heartbeatKey).Err()
			cancel()
			return
		case <-ticker.C:
			sendHeartbeat()
		}
	}
}

// CountActiveInstances counts live heartbeats with SCAN so large keyspaces
// are not blocked.
func CountActiveInstances(ctx context.Context, client redis.UniversalClient) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, InstanceHeartbeatKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
