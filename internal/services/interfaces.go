package services

import (
	"context"
	"errors"
	"time"

	"sessionreminders/internal/models"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoEnrollments    = errors.New("no enrollments")
	ErrTemplate         = errors.New("template error")
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// ConfigStore reads reminder configurations
type ConfigStore interface {
	GetConfig(ctx context.Context, reminderType string) (*models.ReminderConfiguration, error)
	ListEnabledConfigs(ctx context.Context) ([]models.ReminderConfiguration, error)
}

// EnrollmentReader resolves sessions and their enrolled users
type EnrollmentReader interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListRecipients(ctx context.Context, sessionID string, userIDs []string) ([]models.Recipient, error)
	CountEnrollments(ctx context.Context, sessionID string) (int64, error)
	ListEnrollments(ctx context.Context, sessionID string) ([]models.Enrollment, error)
}

// LedgerLookup is the read side the dedup engine needs
type LedgerLookup interface {
	FindLedgerEntries(ctx context.Context, sessionID, reminderType string, userIDs []string) (map[string]models.ReminderLedgerEntry, error)
}

// Ledger records send attempts, upserting on (session, user, reminder type)
type Ledger interface {
	LedgerLookup
	// BeginAttempt claims the tuple; false means it is closed and must not be sent
	BeginAttempt(ctx context.Context, key models.LedgerKey, resendSince *time.Time) (bool, error)
	MarkSent(ctx context.Context, key models.LedgerKey, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, key models.LedgerKey, errMsg string, countRetry bool, maxRetries int) (*models.ReminderLedgerEntry, error)
}

// LedgerReader serves the stats aggregation
type LedgerReader interface {
	ListLedger(ctx context.Context, filter models.LedgerFilter, limit int) ([]models.ReminderLedgerEntry, error)
	CountLedger(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerCount, error)
}

// Scheduler registers a callback for eventName to fire at fireAt. Delivery
// is at-least-once.
type Scheduler interface {
	Register(ctx context.Context, eventName string, payload any, fireAt time.Time) (string, error)
}

// Executor runs one reminder type for one session
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (*DeliveryResult, error)
}
