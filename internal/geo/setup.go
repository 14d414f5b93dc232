package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"trafficwatch/internal/config"
	"trafficwatch/internal/support"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewFromConfig builds the resolver selected by the geolocation settings.
// The returned closer releases provider resources.
func NewFromConfig(ctx context.Context, cfg config.GeolocationConfig, client redis.UniversalClient) (*Resolver, io.Closer, error) {
	var cache Cache
	switch cfg.Cache {
	case "memory":
		cache = NewMemoryCache()
	case "redis", "":
		if client == nil {
			return nil, nil, errors.New("geo: redis cache selected without a redis client")
		}
		cache = NewRedisCache(client)
	default:
		return nil, nil, fmt.Errorf("geo: unknown cache %q", cfg.Cache)
	}

	var (
		provider Provider
		closer   io.Closer = nopCloser{}
	)
	switch cfg.Provider {
	case "ip-api", "":
		provider = NewIPAPIProvider(cfg.Endpoint, &http.Client{Timeout: cfg.Timeout()})
	case "geolite":
		if _, err := os.Stat(cfg.GeoLiteDBPath); errors.Is(err, os.ErrNotExist) {
			key := support.GetEnv("MAXMIND_LICENSE_KEY", "")
			if err := DownloadGeoLite(ctx, key, cfg.GeoLiteDBPath); err != nil {
				return nil, nil, fmt.Errorf("geo: fetch geolite database: %w", err)
			}
		}
		geolite, err := OpenGeoLite(cfg.GeoLiteDBPath)
		if err != nil {
			return nil, nil, err
		}
		provider, closer = geolite, geolite
	default:
		return nil, nil, fmt.Errorf("geo: unknown provider %q", cfg.Provider)
	}

	log.Debug("Geolocation resolver configured", "provider", cfg.Provider, "cache", cfg.Cache)

	resolver := NewResolver(cache, provider,
		WithCacheTTL(cfg.CacheTTL()),
		WithNegativeCacheTTL(cfg.NegativeCacheTTL()),
		WithTimeout(cfg.Timeout()),
	)
	return resolver, closer, nil
}
