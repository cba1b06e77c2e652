package models

import "time"

// EnrollmentStatus values
const (
	EnrollmentActive    = "active"
	EnrollmentCancelled = "cancelled"
)

// Session is a scheduled learning session users enroll in
type Session struct {
	ID              string    `gorm:"primaryKey;size:64" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	StartTime       time.Time `gorm:"not null;index" json:"start_time"`
	DurationMinutes int       `gorm:"not null;default:60" json:"duration_minutes"`
	MeetingURL      string    `gorm:"size:512" json:"meeting_url"`
	HostName        string    `gorm:"size:100" json:"host_name"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "session"
}

// Profile holds the contact details used to address a reminder
type Profile struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Profile model
func (Profile) TableName() string {
	return "profile"
}

// Enrollment links a user to a session
type Enrollment struct {
	ID               string    `gorm:"primaryKey;size:64" json:"id"`
	SessionID        string    `gorm:"size:64;not null;uniqueIndex:uq_enrollment_session_user,priority:1" json:"session_id"`
	UserID           string    `gorm:"size:64;not null;uniqueIndex:uq_enrollment_session_user,priority:2" json:"user_id"`
	EnrolledAt       time.Time `gorm:"not null" json:"enrolled_at"`
	Status           string    `gorm:"size:16;not null;default:'active';index" json:"status"`
	UnitsSpent       int       `gorm:"not null;default:0" json:"units_spent"`
	SessionStartTime time.Time `gorm:"not null" json:"session_start_time"` // denormalized at enrollment time
}

// TableName specifies the table name for the Enrollment model
func (Enrollment) TableName() string {
	return "session_enrollment"
}

// Recipient is an enrolled user resolved to contact details
type Recipient struct {
	UserID string
	Email  string
	Name   string
}

// PendingReminderItem is built fresh on every delivery run and never stored
type PendingReminderItem struct {
	SessionID string
	UserID    string
	UserEmail string
	UserName  string
	Session   Session
}
