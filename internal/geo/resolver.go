// Package geo resolves client addresses to a best-effort geolocation.
package geo

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"trafficwatch/internal/domain"
	"trafficwatch/internal/metrics"
)

const (
	cacheKeyPrefix       = "trafficwatch:geo:"
	DefaultCacheTTL      = 24 * time.Hour
	MaxNegativeCacheTTL  = time.Hour
	defaultLookupTimeout = 3 * time.Second
)

var ErrLookupFailed = errors.New("geo: lookup failed")

// Cache stores resolved geolocations. A found empty Geolocation is a cached
// failure marker.
type Cache interface {
	Get(ctx context.Context, key string) (domain.Geolocation, bool, error)
	Set(ctx context.Context, key string, geo domain.Geolocation, ttl time.Duration) error
}

// Provider performs the actual lookup. It must honour ctx cancellation.
type Provider interface {
	Lookup(ctx context.Context, address string) (domain.Geolocation, error)
}

type Resolver struct {
	cache       Cache
	provider    Provider
	ttl         time.Duration
	negativeTTL time.Duration
	timeout     time.Duration
	group       singleflight.Group
}

type Option func(*Resolver)

func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithNegativeCacheTTL caches failures for ttl, capped at one hour. Zero
// disables negative caching.
func WithNegativeCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.negativeTTL = min(max(ttl, 0), MaxNegativeCacheTTL)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

func NewResolver(cache Cache, provider Provider, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    cache,
		provider: provider,
		ttl:      DefaultCacheTTL,
		timeout:  defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Cache() Cache {
	return r.cache
}

// Resolve never fails: any problem yields an empty Geolocation.
func (r *Resolver) Resolve(ctx context.Context, address string) domain.Geolocation {
	if !domain.IsPublicAddress(address) {
		metrics.GeoLookups.WithLabelValues("skipped").Inc()
		return domain.Geolocation{}
	}

	canonical, _ := domain.NormalizeAddress(address)
	key := cacheKeyPrefix + canonical

	if r.cache != nil {
		geo, found, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("Geolocation cache read failed", "address", canonical, "error", err)
		case found && geo.IsEmpty():
			metrics.GeoLookups.WithLabelValues("negative_hit").Inc()
			return domain.Geolocation{}
		case found:
			metrics.GeoLookups.WithLabelValues("hit").Inc()
			return geo
		}
	}

	if r.provider == nil {
		return domain.Geolocation{}
	}

	result, _, _ := r.group.Do(canonical, func() (any, error) {
		return r.lookup(ctx, canonical, key), nil
	})

	geo, _ := result.(domain.Geolocation)
	return geo
}

func (r *Resolver) lookup(ctx context.Context, address, key string) domain.Geolocation {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	geo, err := r.provider.Lookup(lookupCtx, address)
	metrics.GeoProviderDuration.Observe(time.Since(started).Seconds())

	if err == nil && geo.IsEmpty() {
		err = ErrLookupFailed
	}

	if err != nil {
		metrics.GeoLookups.WithLabelValues("failure").Inc()
		log.Warn("Geolocation lookup failed", "address", address, "error", err)
		if r.cache != nil && r.negativeTTL > 0 {
			r.store(ctx, key, domain.Geolocation{}, r.negativeTTL)
		}
		return domain.Geolocation{}
	}

	metrics.GeoLookups.WithLabelValues("success").Inc()
	if r.cache != nil {
		r.store(ctx, key, geo, r.ttl)
	}
	return geo
}

func (r *Resolver) store(ctx context.Context, key string, geo domain.Geolocation, ttl time.Duration) {
	if err := r.cache.Set(context.WithoutCancel(ctx), key, geo, ttl); err != nil {
		log.Warn("Geolocation cache write failed", "key", key, "error", err)
	}
}

// CacheKey returns the cache key used for address.
func CacheKey(address string) string {
	canonical, ok := domain.NormalizeAddress(address)
	if !ok {
		return cacheKeyPrefix + address
	}
	return cacheKeyPrefix + canonical
}
