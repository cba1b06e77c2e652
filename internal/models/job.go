package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus values for ScheduledJob
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// ScheduledJob is a durable callback registration: EventName fires at RunAt with Payload
type ScheduledJob struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	EventName string         `gorm:"size:64;not null" json:"event_name"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`

	RunAt  time.Time `gorm:"not null;index:idx_scheduled_job_due,priority:2" json:"run_at"`
	Status JobStatus `gorm:"size:16;not null;default:'PENDING';index:idx_scheduled_job_due,priority:1" json:"status"`

	Attempts    int `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int `gorm:"not null;default:8" json:"max_attempts"`

	LockedBy *string    `gorm:"size:64" json:"locked_by,omitempty"`
	LockedAt *time.Time `gorm:"index" json:"locked_at,omitempty"`

	LastError *string `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the ScheduledJob model
func (ScheduledJob) TableName() string {
	return "scheduled_job"
}
