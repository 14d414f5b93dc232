package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultScanInterval   = time.Hour
	maxNegativeCacheTTL   = time.Hour
	defaultGeoCacheTTL    = 24 * time.Hour
	defaultAnomalyWindow  = time.Hour
	defaultLookupTimeout  = 3 * time.Second
	defaultLoggingTimeout = 5 * time.Second
	defaultGeoLiteUpdate  = 24 * time.Hour
)

var (
	scanInterval  atomic.Value
	scanListeners []chan time.Duration
	listenersMu   sync.Mutex
)

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

func (t Timer) IsZero() bool {
	return t.Days == 0 && t.Hours == 0 && t.Minutes == 0 && t.Seconds == 0
}

// Duration converts the timer without enforcing any minimum.
func (t Timer) Duration() time.Duration {
	return time.Duration(CalculateMillisecondsOfCheckingPeriod(t)) * time.Millisecond
}

func init() {
	scanInterval.Store(defaultScanInterval)
}

func SetBetweenTime() {
	cfg := GetConfig()
	setScanInterval(calculateScanInterval(cfg))
}

// CalculateBetweenTime converts a timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfCheckingPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfCheckingPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func GetScanInterval() time.Duration {
	return scanInterval.Load().(time.Duration)
}

// ScanIntervalUpdates registers a listener that receives the current scan
// interval immediately and every subsequent change.
func ScanIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	scanListeners = append(scanListeners, ch)
	listenersMu.Unlock()

	ch <- GetScanInterval()
	return ch
}

func setScanInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultScanInterval
	}

	current := GetScanInterval()
	if current == interval {
		return
	}

	scanInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range scanListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateScanInterval(cfg Config) time.Duration {
	if cfg.Anomaly.ScanTimer.IsZero() {
		return defaultScanInterval
	}
	return CalculateBetweenTime(cfg.Anomaly.ScanTimer)
}

func (g GeolocationConfig) CacheTTL() time.Duration {
	if g.CacheTimer.IsZero() {
		return defaultGeoCacheTTL
	}
	return CalculateBetweenTime(g.CacheTimer)
}

// NegativeCacheTTL is zero when failures should not be cached and never
// exceeds one hour.
func (g GeolocationConfig) NegativeCacheTTL() time.Duration {
	ttl := g.NegativeCacheTimer.Duration()
	if ttl > maxNegativeCacheTTL {
		return maxNegativeCacheTTL
	}
	return ttl
}

func (g GeolocationConfig) Timeout() time.Duration {
	if g.TimeoutSeconds == 0 {
		return defaultLookupTimeout
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

func (g GeolocationConfig) GeoLiteUpdateInterval() time.Duration {
	if g.GeoLiteUpdateTimer.IsZero() {
		return defaultGeoLiteUpdate
	}
	return CalculateBetweenTime(g.GeoLiteUpdateTimer)
}

func (a AnomalyConfig) WindowDuration() time.Duration {
	if a.Window.IsZero() {
		return defaultAnomalyWindow
	}
	return CalculateBetweenTime(a.Window)
}

func (c Config) LoggingTimeout() time.Duration {
	if c.Interceptor.LogTimeoutSeconds == 0 {
		return defaultLoggingTimeout
	}
	return time.Duration(c.Interceptor.LogTimeoutSeconds) * time.Second
}
