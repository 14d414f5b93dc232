package database

import (
	"context"
	"errors"
	"fmt"

	"trafficwatch/internal/domain"

	"gorm.io/gorm/clause"
)

// UpsertSuspicion inserts record or, when the address is already flagged,
// overwrites its verdict and reactivates it. FirstDetected is only written
// on insert.
func UpsertSuspicion(ctx context.Context, record *domain.SuspicionRecord) error {
	if record == nil {
		return errors.New("database: nil suspicion record")
	}
	if !record.Reason.Valid() {
		return fmt.Errorf("database: invalid suspicion reason %q", record.Reason)
	}

	db, err := conn(ctx)
	if err != nil {
		return err
	}

	record.IsActive = true
	if record.FirstDetected.IsZero() {
		record.FirstDetected = record.LastDetected
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "details", "last_detected", "is_active"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("database: upsert suspicion for %s: %w", record.IPAddress, err)
	}
	return nil
}

func CountActiveSuspicions(ctx context.Context) (int64, error) {
	db, err := conn(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&domain.SuspicionRecord{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("database: count active suspicions: %w", err)
	}
	return count, nil
}

// ListSuspicions returns flagged addresses, most recently detected first.
func ListSuspicions(ctx context.Context, activeOnly bool) ([]domain.SuspicionRecord, error) {
	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Order("last_detected DESC").Order("ip_address ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var records []domain.SuspicionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("database: list suspicions: %w", err)
	}
	return records, nil
}
