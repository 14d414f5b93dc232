package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SuspicionReason is the closed set of verdicts the anomaly scanner can store.
type SuspicionReason string

const (
	SuspicionHighVolume         SuspicionReason = "high_volume"
	SuspicionSensitivePath      SuspicionReason = "sensitive_path"
	SuspicionMultipleViolations SuspicionReason = "multiple"
)

func (r SuspicionReason) Valid() bool {
	switch r {
	case SuspicionHighVolume, SuspicionSensitivePath, SuspicionMultipleViolations:
		return true
	}
	return false
}

// Label is the human readable form used in logs.
func (r SuspicionReason) Label() string {
	switch r {
	case SuspicionHighVolume:
		return "High request volume"
	case SuspicionSensitivePath:
		return "Accessed sensitive path"
	case SuspicionMultipleViolations:
		return "Multiple violations"
	}
	return string(r)
}

// SuspicionDetails carries the evidence behind a verdict. Which fields are
// set depends on the reason.
type SuspicionDetails struct {
	RequestCount  int64     `json:"request_count,omitempty"`
	Threshold     int64     `json:"threshold,omitempty"`
	PathsAccessed []string  `json:"paths_accessed,omitempty"`
	DetectedAt    time.Time `json:"detected_at"`
}

// SuspicionRecord holds the current verdict for one address. The scanner
// refreshes it in place, so there is never more than one row per address.
type SuspicionRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	IPAddress string          `gorm:"column:ip_address;size:45;uniqueIndex;not null"`
	Reason    SuspicionReason `gorm:"size:20;not null"`

	FirstDetected time.Time `gorm:"column:first_detected;not null"`
	LastDetected  time.Time `gorm:"column:last_detected;not null;index"`

	IsActive bool                                 `gorm:"column:is_active;not null;index"`
	Details  datatypes.JSONType[SuspicionDetails] `gorm:"column:details"`
}

func (SuspicionRecord) TableName() string {
	return "suspicion_records"
}
