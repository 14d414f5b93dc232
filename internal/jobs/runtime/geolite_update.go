package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/geo"
)

const geoLiteUpdateFallbackEvery = 24 * time.Hour

// UpdateFunc refreshes the local GeoLite database.
type UpdateFunc func(ctx context.Context) error

// StartGeoLiteUpdateRoutine calls update on every tick until ctx is done.
// Every instance keeps its own file, so there is no leader election here.
func StartGeoLiteUpdateRoutine(ctx context.Context, interval time.Duration, update UpdateFunc) {
	if interval <= 0 {
		interval = geoLiteUpdateFallbackEvery
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerGeoLiteUpdate(ctx, update)
		}
	}
}

func triggerGeoLiteUpdate(ctx context.Context, update UpdateFunc) {
	start := time.Now()
	err := update(ctx)
	switch {
	case errors.Is(err, geo.ErrNoLicenseKey):
		log.Debug("GeoLite update skipped: license key missing")
	case err != nil && ctx.Err() == nil:
		log.Error("GeoLite update failed", "error", err)
	case err == nil:
		log.Info("GeoLite database updated", "duration", time.Since(start))
	}
}
