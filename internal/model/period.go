package model

import (
	"time"

	"power-outage-monitor/internal/period"
)

// Status is the power status a schedule line announces for a group.
type Status string

const (
	StatusOutage    Status = "outage"
	StatusAvailable Status = "available"
)

// State is the reconciliation state of a recorded period.
type State string

const (
	StatePending   State = "pending"
	StateGenerated State = "generated"
	StateDiscarded State = "discarded"
	StateCancelled State = "cancelled"
)

// OutagePeriod is one group's status over one window on one date, as
// observed at LastUpdate.
type OutagePeriod struct {
	RecordID       string    `gorm:"primaryKey;size:36"`
	Date           string    `gorm:"size:10;not null;index:idx_period_group_date,priority:2"`
	GroupName      string    `gorm:"size:64;not null;index:idx_period_group_date,priority:1"`
	GroupCode      string    `gorm:"size:16;not null;index"`
	Status         Status    `gorm:"size:16;not null"`
	WindowFrom     string    `gorm:"size:5"`
	WindowTo       string    `gorm:"size:5"`
	LastUpdate     time.Time `gorm:"not null"`
	InsertedAt     time.Time `gorm:"not null;index"`
	EventID        string    `gorm:"size:160;not null"`
	EventUID       string    `gorm:"size:128;not null;uniqueIndex"`
	ContentHash    string    `gorm:"size:64;not null;index"`
	State          State     `gorm:"size:16;not null;index"`
	StateChangedAt time.Time `gorm:"not null"`
	Sent           bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasWindow reports whether the period carries a clock window. Periods
// without one cover the whole day.
func (p OutagePeriod) HasWindow() bool {
	return p.WindowFrom != "" && p.WindowTo != ""
}

// Overlaps reports whether p and other claim overlapping time. A period
// without a window only collides with another of the same status.
func (p OutagePeriod) Overlaps(other OutagePeriod) bool {
	if !p.HasWindow() || !other.HasWindow() {
		return p.Status == other.Status
	}
	return period.IntervalsOverlap(p.WindowFrom, p.WindowTo, other.WindowFrom, other.WindowTo)
}

// GroupEntry is one group line of a published schedule.
type GroupEntry struct {
	Name       string `json:"group"`
	Status     Status `json:"status"`
	WindowFrom string `json:"from,omitempty"`
	WindowTo   string `json:"to,omitempty"`
}

// Observation is a validated schedule as read from the source.
type Observation struct {
	Date       time.Time    `json:"date"`
	LastUpdate time.Time    `json:"last_update"`
	Groups     []GroupEntry `json:"groups"`
}
