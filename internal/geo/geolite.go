package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"trafficwatch/internal/domain"
)

var ErrGeoLiteUnavailable = errors.New("geo: geolite database not loaded")

// GeoLiteProvider answers lookups from a local MaxMind GeoLite2-City file.
type GeoLiteProvider struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	path   string
}

func OpenGeoLite(path string) (*GeoLiteProvider, error) {
	p := &GeoLiteProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewGeoLiteFromBytes loads an in-memory database.
func NewGeoLiteFromBytes(data []byte) (*GeoLiteProvider, error) {
	reader, err := geoip2.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("geo: parse geolite database: %w", err)
	}
	return &GeoLiteProvider{reader: reader}, nil
}

// Reload reopens the database file, swapping readers atomically.
func (p *GeoLiteProvider) Reload() error {
	if p.path == "" {
		return fmt.Errorf("geo: geolite provider has no file path")
	}

	reader, err := geoip2.Open(p.path)
	if err != nil {
		return fmt.Errorf("geo: open geolite database %s: %w", p.path, err)
	}

	p.mu.Lock()
	previous := p.reader
	p.reader = reader
	p.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

func (p *GeoLiteProvider) Lookup(ctx context.Context, address string) (domain.Geolocation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Geolocation{}, err
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return domain.Geolocation{}, fmt.Errorf("geo: invalid address %q", address)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.reader == nil {
		return domain.Geolocation{}, ErrGeoLiteUnavailable
	}

	record, err := p.reader.City(ip)
	if err != nil {
		return domain.Geolocation{}, fmt.Errorf("geo: geolite city lookup: %w", err)
	}

	geo := domain.Geolocation{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		geo.Latitude = &lat
		geo.Longitude = &lon
	}
	return geo, nil
}

func (p *GeoLiteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}
