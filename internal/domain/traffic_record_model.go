package domain

import "time"

// TrafficRecord is the immutable audit row written once per admitted request.
type TrafficRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	IPAddress string    `gorm:"column:ip_address;size:45;not null;index:idx_traffic_records_ip_address"`
	Path      string    `gorm:"size:255;not null"`
	Method    string    `gorm:"size:10;not null"`
	Timestamp time.Time `gorm:"not null;index:idx_traffic_records_timestamp"`
	UserAgent *string   `gorm:"type:text"`

	Country   *string  `gorm:"size:100;index:idx_traffic_records_country_city,priority:1"`
	City      *string  `gorm:"size:100;index:idx_traffic_records_country_city,priority:2"`
	Latitude  *float64 `gorm:"column:latitude"`
	Longitude *float64 `gorm:"column:longitude"`
}

func (TrafficRecord) TableName() string {
	return "traffic_records"
}

// Geolocation returns the geolocation columns as a Geolocation value.
func (r TrafficRecord) Geolocation() Geolocation {
	var geo Geolocation
	if r.Country != nil {
		geo.Country = *r.Country
	}
	if r.City != nil {
		geo.City = *r.City
	}
	geo.Latitude = r.Latitude
	geo.Longitude = r.Longitude
	return geo
}
