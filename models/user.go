package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the per-user profile the core needs: identity and timezone.
// Accounts and authentication live outside this service.
type User struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Timezone  string         `gorm:"size:64" json:"timezone"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns an ID when the caller did not supply one.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
