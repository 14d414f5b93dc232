package domain

import "time"

// BlockEntry marks a single address as denied at the interceptor.
type BlockEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// IPAddress holds the canonical address string (e.g. 192.0.2.1 or 2001:db8::1).
	IPAddress string `gorm:"column:ip_address;size:45;uniqueIndex;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`

	// Reason is free text supplied by the operator who added the block.
	Reason *string `gorm:"type:text"`

	IsActive bool `gorm:"column:is_active;not null;index"`
}

func (BlockEntry) TableName() string {
	return "block_entries"
}
