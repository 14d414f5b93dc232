package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"trafficwatch/internal/domain"
)

const (
	DefaultIPAPIEndpoint = "http://ip-api.com/json"
	ipAPIFields          = "status,message,country,city,lat,lon"
	maxResponseBytes     = 64 << 10
)

type ipAPIResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Country string   `json:"country"`
	City    string   `json:"city"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// IPAPIProvider queries an ip-api.com compatible JSON endpoint.
type IPAPIProvider struct {
	endpoint string
	client   *http.Client
}

func NewIPAPIProvider(endpoint string, client *http.Client) *IPAPIProvider {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultIPAPIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &IPAPIProvider{endpoint: endpoint, client: client}
}

func (p *IPAPIProvider) Lookup(ctx context.Context, address string) (domain.Geolocation, error) {
	target := fmt.Sprintf("%s/%s?fields=%s", p.endpoint, url.PathEscape(address), ipAPIFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Geolocation{}, fmt.Errorf("geo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Geolocation{}, fmt.Errorf("geo: request %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Geolocation{}, fmt.Errorf("geo: unexpected status %d for %s", resp.StatusCode, address)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return domain.Geolocation{}, fmt.Errorf("geo: decode response: %w", err)
	}

	if body.Status != "success" {
		return domain.Geolocation{}, fmt.Errorf("%w: status %q: %s", ErrLookupFailed, body.Status, body.Message)
	}

	return domain.Geolocation{
		Country:   body.Country,
		City:      body.City,
		Latitude:  body.Lat,
		Longitude: body.Lon,
	}, nil
}
