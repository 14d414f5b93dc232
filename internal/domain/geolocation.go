package domain

// Geolocation is the best-effort location of an address. Every field is
// optional; the zero value means "unknown".
type Geolocation struct {
	Country   string   `json:"country,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (g Geolocation) IsEmpty() bool {
	return g.Country == "" && g.City == "" && g.Latitude == nil && g.Longitude == nil
}

// Apply copies the known fields onto the record's nullable geolocation columns.
func (g Geolocation) Apply(record *TrafficRecord) {
	if record == nil {
		return
	}
	if g.Country != "" {
		country := g.Country
		record.Country = &country
	}
	if g.City != "" {
		city := g.City
		record.City = &city
	}
	if g.Latitude != nil {
		lat := *g.Latitude
		record.Latitude = &lat
	}
	if g.Longitude != nil {
		lon := *g.Longitude
		record.Longitude = &lon
	}
}
