package services

import "time"

const (
	EventReminderDue     = "reminder/send.due"
	EventManualRequested = "reminder/manual.requested"
)

// ReminderDuePayload is registered once per enrollment and reminder type
type ReminderDuePayload struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id,omitempty"` // empty means every enrolled user
	EnrollmentID     string    `json:"enrollment_id,omitempty"`
	ReminderType     string    `json:"reminder_type"`
	FireAt           time.Time `json:"fire_at"`
	SessionStartTime time.Time `json:"session_start_time"`
}

// ManualReminderPayload carries an admin-requested run
type ManualReminderPayload struct {
	SessionID     string    `json:"session_id"`
	ReminderTypes []string  `json:"reminder_types"`
	TriggeredBy   string    `json:"triggered_by"`
	RequestedAt   time.Time `json:"requested_at"`
}
