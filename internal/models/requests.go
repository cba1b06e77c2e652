package models

import "time"

// EnrollmentEventRequest is posted by the application when a user enrolls
type EnrollmentEventRequest struct {
	SessionID        string    `json:"session_id" binding:"required,max=64"`
	UserID           string    `json:"user_id" binding:"required,max=64"`
	EnrollmentID     string    `json:"enrollment_id" binding:"max=64"`
	SessionStartTime time.Time `json:"session_start_time" binding:"required"`
}

// ScheduleManualRemindersRequest asks for an immediate reminder run for a session
type ScheduleManualRemindersRequest struct {
	SessionID     string   `json:"session_id" binding:"required,max=64"`
	ReminderTypes []string `json:"reminder_types" binding:"required,min=1,dive,required,max=32"`
}

// SendTestReminderRequest sends a rendered sample of each reminder type to an admin
type SendTestReminderRequest struct {
	ReminderTypes []string `json:"reminder_types" binding:"required,min=1,dive,required,max=32"`
	AdminEmail    string   `json:"admin_email" binding:"required,email"`
	AdminName     string   `json:"admin_name" binding:"max=255"`
}

// UpdateReminderConfigRequest patches an existing reminder configuration
type UpdateReminderConfigRequest struct {
	MinutesBefore   *int    `json:"minutes_before" binding:"omitempty,min=0"`
	DisplayName     *string `json:"display_name" binding:"omitempty,max=100"`
	SubjectTemplate *string `json:"subject_template" binding:"omitempty,min=1,max=255"`
	BodyTemplate    *string `json:"body_template"`
	IsEnabled       *bool   `json:"is_enabled"`
	SortOrder       *int    `json:"sort_order"`
}
