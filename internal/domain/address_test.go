package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  string
		valid bool
	}{
		{name: "ipv4", raw: "192.0.2.1", want: "192.0.2.1", valid: true},
		{name: "ipv4 with spaces", raw: "  203.0.113.5 ", want: "203.0.113.5", valid: true},
		{name: "ipv6 canonical", raw: "2001:DB8:0:0::1", want: "2001:db8::1", valid: true},
		{name: "ipv4 mapped", raw: "::ffff:198.51.100.9", want: "198.51.100.9", valid: true},
		{name: "zone rejected", raw: "fe80::1%eth0", valid: false},
		{name: "hostname", raw: "example.com", valid: false},
		{name: "empty", raw: "", valid: false},
		{name: "cidr", raw: "192.0.2.0/24", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeAddress(tt.raw)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsPublicAddress(t *testing.T) {
	public := []string{"8.8.8.8", "203.0.113.5", "2606:4700:4700::1111"}
	for _, addr := range public {
		assert.True(t, IsPublicAddress(addr), addr)
	}

	nonPublic := []string{
		"127.0.0.1",
		"10.1.2.3",
		"172.16.0.1",
		"192.168.1.1",
		"169.254.10.10",
		"::1",
		"fe80::1",
		"fd00::1",
		"0.0.0.0",
		"224.0.0.1",
		"not-an-ip",
	}
	for _, addr := range nonPublic {
		assert.False(t, IsPublicAddress(addr), addr)
	}
}

func TestGeolocationApply(t *testing.T) {
	lat, lon := 48.85, 2.35
	geo := Geolocation{Country: "France", City: "Paris", Latitude: &lat, Longitude: &lon}

	var record TrafficRecord
	geo.Apply(&record)

	if assert.NotNil(t, record.Country) {
		assert.Equal(t, "France", *record.Country)
	}
	if assert.NotNil(t, record.Latitude) {
		assert.InDelta(t, 48.85, *record.Latitude, 1e-9)
	}
	assert.Equal(t, geo, record.Geolocation())

	var empty TrafficRecord
	Geolocation{}.Apply(&empty)
	assert.Nil(t, empty.Country)
	assert.Nil(t, empty.City)
	assert.True(t, empty.Geolocation().IsEmpty())
}
