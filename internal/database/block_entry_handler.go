package database

import (
	"context"
	"errors"
	"fmt"

	"trafficwatch/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidAddress     = errors.New("invalid IP address")
	ErrBlockEntryNotFound = errors.New("block entry not found")
)

// IsAddressBlocked reports whether an active block entry exists for address.
// Addresses that do not parse are never blocked.
func IsAddressBlocked(ctx context.Context, address string) (bool, error) {
	canonical, ok := domain.NormalizeAddress(address)
	if !ok {
		return false, nil
	}

	db, err := conn(ctx)
	if err != nil {
		return false, err
	}

	var hits int64
	err = db.Model(&domain.BlockEntry{}).
		Where("ip_address = ? AND is_active = ?", canonical, true).
		Limit(1).
		Count(&hits).Error
	if err != nil {
		return false, fmt.Errorf("database: check block entry: %w", err)
	}
	return hits > 0, nil
}

// UpsertBlockEntry blocks address, creating the entry or refreshing the
// reason and reactivating an existing one. created reports which happened.
func UpsertBlockEntry(ctx context.Context, address string, reason *string) (entry domain.BlockEntry, created bool, err error) {
	canonical, ok := domain.NormalizeAddress(address)
	if !ok {
		return domain.BlockEntry{}, false, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	db, err := conn(ctx)
	if err != nil {
		return domain.BlockEntry{}, false, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		entry = domain.BlockEntry{
			IPAddress: canonical,
			Reason:    reason,
			IsActive:  true,
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ip_address"}},
			DoNothing: true,
		}).Create(&entry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			created = true
			return nil
		}

		if err := tx.Model(&domain.BlockEntry{}).
			Where("ip_address = ?", canonical).
			Updates(map[string]any{"reason": reason, "is_active": true}).Error; err != nil {
			return err
		}
		return tx.Where("ip_address = ?", canonical).First(&entry).Error
	})
	if err != nil {
		return domain.BlockEntry{}, false, fmt.Errorf("database: upsert block entry: %w", err)
	}

	return entry, created, nil
}

// DeactivateBlockEntry lifts a block without deleting its history.
func DeactivateBlockEntry(ctx context.Context, address string) error {
	canonical, ok := domain.NormalizeAddress(address)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	db, err := conn(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&domain.BlockEntry{}).
		Where("ip_address = ?", canonical).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("database: deactivate block entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBlockEntryNotFound
	}
	return nil
}

func GetBlockEntry(ctx context.Context, address string) (domain.BlockEntry, error) {
	canonical, ok := domain.NormalizeAddress(address)
	if !ok {
		return domain.BlockEntry{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	db, err := conn(ctx)
	if err != nil {
		return domain.BlockEntry{}, err
	}

	var entry domain.BlockEntry
	if err := db.Where("ip_address = ?", canonical).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BlockEntry{}, ErrBlockEntryNotFound
		}
		return domain.BlockEntry{}, fmt.Errorf("database: get block entry: %w", err)
	}
	return entry, nil
}
