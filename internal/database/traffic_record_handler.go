package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trafficwatch/internal/domain"
)

// AddressCount is the number of traffic records one address produced.
type AddressCount struct {
	IPAddress    string
	RequestCount int64
}

// AddressPath is one distinct (address, path) pair.
type AddressPath struct {
	IPAddress string
	Path      string
}

func InsertTrafficRecord(ctx context.Context, record *domain.TrafficRecord) error {
	if record == nil {
		return errors.New("database: nil traffic record")
	}

	db, err := conn(ctx)
	if err != nil {
		return err
	}

	if err := db.Create(record).Error; err != nil {
		return fmt.Errorf("database: insert traffic record: %w", err)
	}
	return nil
}

// CountRequestsAbove returns the addresses with more than threshold records
// whose timestamp falls in [since, until].
func CountRequestsAbove(ctx context.Context, since, until time.Time, threshold int64) ([]AddressCount, error) {
	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	var counts []AddressCount
	err = db.Model(&domain.TrafficRecord{}).
		Select("ip_address, COUNT(*) AS request_count").
		Where("timestamp >= ? AND timestamp <= ?", since.UTC(), until.UTC()).
		Group("ip_address").
		Having("COUNT(*) > ?", threshold).
		Order("ip_address ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("database: count requests per address: %w", err)
	}
	return counts, nil
}

// ListPathHits returns the distinct (address, path) pairs in [since, until]
// whose path is one of paths.
func ListPathHits(ctx context.Context, since, until time.Time, paths []string) ([]AddressPath, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	var hits []AddressPath
	err = db.Model(&domain.TrafficRecord{}).
		Distinct("ip_address", "path").
		Where("timestamp >= ? AND timestamp <= ?", since.UTC(), until.UTC()).
		Where("path IN ?", paths).
		Order("ip_address ASC").
		Order("path ASC").
		Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("database: list sensitive path hits: %w", err)
	}
	return hits, nil
}
