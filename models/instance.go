package models

import (
	"time"

	"github.com/cppla/habitcore/logicalday"
)

// InstanceStatus is the lifecycle of one materialized occurrence.
type InstanceStatus string

const (
	StatusPending InstanceStatus = "pending"
	StatusDone    InstanceStatus = "done"
	StatusSkipped InstanceStatus = "skipped"
)

// Terminal statuses are never changed again.
func (s InstanceStatus) Terminal() bool {
	return s == StatusDone || s == StatusSkipped
}

// ObligationInstance is one task due on one logical day.
// (task_id, logical_day) is unique; the materializer relies on it for idempotence.
type ObligationInstance struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	TaskID         uint            `gorm:"not null;uniqueIndex:idx_instance_task_day,priority:1" json:"task_id"`
	UserID         string          `gorm:"size:36;not null;index:idx_instance_user_day,priority:1" json:"user_id"`
	LogicalDay     logicalday.Date `gorm:"type:varchar(10);not null;uniqueIndex:idx_instance_task_day,priority:2;index:idx_instance_user_day,priority:2" json:"logical_day"`
	Status         InstanceStatus  `gorm:"size:16;not null;default:pending;index" json:"status"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	DeferredFromID *uint           `json:"deferred_from_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
