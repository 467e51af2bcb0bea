package models

import "time"

// JobRun counts batch job invocations per UTC day and job name.
type JobRun struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      string    `gorm:"index:idx_jobrun_date_job,unique;size:10;not null" json:"date"`
	Job       string    `gorm:"index:idx_jobrun_date_job,unique;size:64;not null" json:"job"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
