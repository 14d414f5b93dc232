package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"trafficwatch/internal/config"
	"trafficwatch/internal/database"
	"trafficwatch/internal/support"
)

const (
	anomalyScanLockKey        = "trafficwatch:leader:anomaly_scan"
	anomalyScanFallbackTicker = time.Hour
)

// ScanFunc runs one anomaly scan and returns the active suspicion count.
type ScanFunc func(ctx context.Context) (int64, error)

// StartAnomalyScanRoutine runs scan immediately and then on every scan
// interval tick until ctx is done. With a redis client only the elected
// instance scans.
func StartAnomalyScanRoutine(ctx context.Context, client redis.UniversalClient, scan ScanFunc) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Int64
	intervalValue.Store(int64(normaliseScanInterval(config.GetScanInterval())))

	updateSignal := make(chan struct{}, 1)
	updates := config.ScanIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				intervalValue.Store(int64(normaliseScanInterval(newInterval)))
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	if client == nil {
		log.Warn("Anomaly scan running without leader election")
		runAnomalyScanLoop(ctx, &intervalValue, updateSignal, scan)
		return
	}

	elector := support.NewElector(client, anomalyScanLockKey, support.DefaultLeadershipTTL)
	err := elector.Run(ctx, func(leaderCtx context.Context) {
		runAnomalyScanLoop(leaderCtx, &intervalValue, updateSignal, scan)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Anomaly scan routine stopped", "error", err)
	}
}

func normaliseScanInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return anomalyScanFallbackTicker
	}
	return interval
}

func runAnomalyScanLoop(ctx context.Context, intervalValue *atomic.Int64, updateSignal <-chan struct{}, scan ScanFunc) {
	currentInterval := time.Duration(intervalValue.Load())

	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	scanOnce(ctx, scan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanOnce(ctx, scan)
		case <-updateSignal:
			newInterval := time.Duration(intervalValue.Load())
			if newInterval == currentInterval {
				continue
			}
			drainTicker(ticker)
			currentInterval = newInterval
			ticker.Reset(currentInterval)
			log.Debug("Anomaly scan interval updated", "interval", currentInterval)
		}
	}
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}

func scanOnce(ctx context.Context, scan ScanFunc) {
	start := time.Now()

	active, err := scan(ctx)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotInitialised):
			log.Warn("Anomaly scan skipped: database not initialised")
		case errors.Is(err, context.Canceled):
			log.Info("Anomaly scan canceled", "duration", time.Since(start))
		default:
			log.Error("Anomaly scan finished with errors", "active", active, "error", err)
		}
		return
	}

	log.Info("Anomaly scan completed", "active", active, "duration", time.Since(start))
}
