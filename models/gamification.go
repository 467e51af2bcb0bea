package models

import (
	"time"

	"github.com/cppla/habitcore/logicalday"
)

// GamificationStats is the single mutable aggregate per user.
type GamificationStats struct {
	UserID         string           `gorm:"primaryKey;size:36" json:"user_id"`
	CurrentStreak  int              `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak  int              `gorm:"not null;default:0" json:"longest_streak"`
	Points         int              `gorm:"not null;default:0" json:"points"`
	Level          int              `gorm:"not null;default:1" json:"level"`
	LastActiveDate *logicalday.Date `gorm:"type:varchar(10);index" json:"last_active_date,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// PointLog is append-only. The per-day sum enforces the daily award cap.
type PointLog struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     string          `gorm:"size:36;not null;index:idx_point_user_day,priority:1" json:"user_id"`
	LogicalDay logicalday.Date `gorm:"type:varchar(10);not null;index:idx_point_user_day,priority:2" json:"logical_day"`
	Amount     int             `gorm:"not null" json:"amount"`
	Source     string          `gorm:"size:32;not null" json:"source"`
	InstanceID *uint           `gorm:"index" json:"instance_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AchievementUnlock is permanent; (user_id, achievement_id) is unique.
type AchievementUnlock struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"size:36;not null;uniqueIndex:idx_unlock_user_achievement,priority:1" json:"user_id"`
	AchievementID string    `gorm:"size:64;not null;uniqueIndex:idx_unlock_user_achievement,priority:2" json:"achievement_id"`
	BonusPoints   int       `gorm:"not null;default:0" json:"bonus_points"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}
