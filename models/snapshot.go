package models

import (
	"time"

	"github.com/cppla/habitcore/logicalday"
)

// DailySnapshot is written once per user and day by the end-of-day sweep.
// Money columns are in minor units.
type DailySnapshot struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         string          `gorm:"size:36;not null;uniqueIndex:idx_snapshot_user_day,priority:1" json:"user_id"`
	LogicalDay     logicalday.Date `gorm:"type:varchar(10);not null;uniqueIndex:idx_snapshot_user_day,priority:2" json:"logical_day"`
	TotalCount     int             `gorm:"not null;default:0" json:"total_count"`
	CompletedCount int             `gorm:"not null;default:0" json:"completed_count"`
	SkippedCount   int             `gorm:"not null;default:0" json:"skipped_count"`
	Income         int64           `gorm:"not null;default:0" json:"income"`
	Expense        int64           `gorm:"not null;default:0" json:"expense"`
	NetFlow        int64           `gorm:"not null;default:0" json:"net_flow"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Perfect reports a day where every obligation was completed.
func (s DailySnapshot) Perfect() bool {
	return s.TotalCount > 0 && s.CompletedCount == s.TotalCount
}
