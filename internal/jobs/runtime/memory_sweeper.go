package runtime

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

const DefaultSweepInterval = time.Minute

// Sweeper removes expired entries and reports how many it dropped.
type Sweeper func() int

// StartMemorySweeper runs every sweeper on each tick until ctx is done.
func StartMemorySweeper(ctx context.Context, interval time.Duration, sweepers ...Sweeper) {
	if len(sweepers) == 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := 0
			for _, sweep := range sweepers {
				removed += sweep()
			}
			if removed > 0 {
				log.Debug("Expired in-memory entries removed", "count", removed)
			}
		}
	}
}
