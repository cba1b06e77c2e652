package models

import (
	"time"

	"gorm.io/gorm"
)

// ReminderConfiguration describes one kind of reminder, e.g. "24h" or "1h"
type ReminderConfiguration struct {
	ReminderType    string    `gorm:"primaryKey;size:32" json:"reminder_type" yaml:"reminder_type"`
	MinutesBefore   int       `gorm:"not null" json:"minutes_before" yaml:"minutes_before"`
	DisplayName     string    `gorm:"size:100;not null" json:"display_name" yaml:"display_name"`
	SubjectTemplate string    `gorm:"size:255;not null" json:"subject_template" yaml:"subject_template"`
	BodyTemplate    string    `gorm:"type:text" json:"body_template" yaml:"body_template"`
	IsEnabled       bool      `gorm:"not null" json:"is_enabled" yaml:"is_enabled"`
	SortOrder       int       `gorm:"not null;default:0" json:"sort_order" yaml:"sort_order"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for the ReminderConfiguration model
func (ReminderConfiguration) TableName() string {
	return "reminder_configuration"
}

// Offset returns how long before the session start this reminder fires
func (c ReminderConfiguration) Offset() time.Duration {
	return time.Duration(c.MinutesBefore) * time.Minute
}

// LedgerStatus is the delivery state of one (session, user, reminder type) tuple
type LedgerStatus string

const (
	LedgerPending LedgerStatus = "pending"
	LedgerSent    LedgerStatus = "sent"
	LedgerFailed  LedgerStatus = "failed"
)

// ReminderLedgerEntry records the send attempts for one (session, user, reminder type).
// Rows are upserted on that key and never deleted.
type ReminderLedgerEntry struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	SessionID         string       `gorm:"size:64;not null;uniqueIndex:uq_reminder_ledger_key,priority:1" json:"session_id"`
	UserID            string       `gorm:"size:64;not null;uniqueIndex:uq_reminder_ledger_key,priority:2;index" json:"user_id"`
	ReminderType      string       `gorm:"size:32;not null;uniqueIndex:uq_reminder_ledger_key,priority:3" json:"reminder_type"`
	Status            LedgerStatus `gorm:"size:16;not null;index" json:"status"`
	RetryCount        int          `gorm:"not null;default:0" json:"retry_count"`
	Permanent         bool         `gorm:"not null;default:false" json:"permanent"` // no further automatic attempts
	LastError         *string      `gorm:"type:text" json:"last_error,omitempty"`
	ProviderMessageID *string      `gorm:"size:128" json:"provider_message_id,omitempty"`
	SentAt            *time.Time   `json:"sent_at,omitempty"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;index" json:"updated_at"`
}

// TableName specifies the table name for the ReminderLedgerEntry model
func (ReminderLedgerEntry) TableName() string {
	return "reminder_ledger"
}

// BeforeCreate fills timestamps the upsert statements rely on
func (e *ReminderLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	return nil
}

// Closed reports whether the automatic path must leave this tuple alone
func (e ReminderLedgerEntry) Closed() bool {
	return e.Status == LedgerSent || (e.Status == LedgerFailed && e.Permanent)
}

// LedgerKey identifies one ledger row
type LedgerKey struct {
	SessionID    string
	UserID       string
	ReminderType string
}

// LedgerFilter narrows ledger reads by last update time and reminder type
type LedgerFilter struct {
	From         *time.Time
	To           *time.Time
	ReminderType string
}

// LedgerCount is the number of ledger rows of one reminder type and status
// last updated on Day (YYYY-MM-DD, UTC)
type LedgerCount struct {
	ReminderType string
	Status       LedgerStatus
	Day          string
	Count        int64
}
