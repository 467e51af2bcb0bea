package models

import (
	"time"

	"gorm.io/gorm"
)

// RecurringTask is a habit definition. CreatedAt doubles as the weekly anchor.
type RecurringTask struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    string          `gorm:"size:36;index;not null" json:"user_id"`
	Title     string          `gorm:"size:255;not null" json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
	Rule      *RecurrenceRule `gorm:"foreignKey:TaskID" json:"rule,omitempty"`
}

// RecurrenceRule holds the one active rule of a task.
type RecurrenceRule struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TaskID        uint      `gorm:"uniqueIndex;not null" json:"task_id"`
	Kind          string    `gorm:"size:16;not null" json:"kind"`
	AnchorWeekday *int      `json:"anchor_weekday,omitempty"` // 0=Sunday; nil derives it from the task
	CreatedAt     time.Time `json:"created_at"`
}
