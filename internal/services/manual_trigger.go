package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/store"
	"sessionreminders/internal/utils"
)

type ManualTriggerInput struct {
	SessionID     string
	ReminderTypes []string
	TriggeredBy   string
	// RequestedAt bounds the resend: tuples sent after it are not mailed again
	RequestedAt time.Time
}

type ManualTriggerResult struct {
	SessionID   string            `json:"session_id"`
	TriggeredBy string            `json:"triggered_by"`
	Sent        int               `json:"sent"`
	Failed      int               `json:"failed"`
	Retryable   int               `json:"retryable"`
	Results     []*DeliveryResult `json:"results"`
}

type TestReminderInput struct {
	ReminderTypes []string
	AdminEmail    string
	AdminName     string
}

type TestReminderOutcome struct {
	ReminderType      string `json:"reminder_type"`
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

type TestReminderResult struct {
	Sent    int                   `json:"sent"`
	Failed  int                   `json:"failed"`
	Results []TestReminderOutcome `json:"results"`
}

type ManualTriggerHandler struct {
	configs     ConfigStore
	enrollments EnrollmentReader
	executor    Executor
	transport   EmailTransport
	baseURL     string
	clock       utils.Clock
}

func NewManualTriggerHandler(configs ConfigStore, enrollments EnrollmentReader, executor Executor, transport EmailTransport, baseURL string, clock utils.Clock) *ManualTriggerHandler {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ManualTriggerHandler{
		configs:     configs,
		enrollments: enrollments,
		executor:    executor,
		transport:   transport,
		baseURL:     baseURL,
		clock:       clock,
	}
}

// Trigger re-sends the requested reminder types to every active enrollment
func (h *ManualTriggerHandler) Trigger(ctx context.Context, in ManualTriggerInput) (*ManualTriggerResult, error) {
	if in.SessionID == "" || len(in.ReminderTypes) == 0 {
		return nil, fmt.Errorf("%w: session_id and reminder_types are required", ErrInvalidInput)
	}

	count, err := h.enrollments.CountEnrollments(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("count enrollments for session %s: %w", in.SessionID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: session %s", ErrNoEnrollments, in.SessionID)
	}

	since := in.RequestedAt
	if since.IsZero() {
		since = h.clock.Now()
	}

	result := &ManualTriggerResult{SessionID: in.SessionID, TriggeredBy: in.TriggeredBy, Results: []*DeliveryResult{}}
	for _, reminderType := range in.ReminderTypes {
		res, err := h.executor.Execute(ctx, ExecuteRequest{
			SessionID:    in.SessionID,
			ReminderType: reminderType,
			Resend:       true,
			ResendSince:  since,
		})
		if err != nil {
			return nil, err
		}
		result.Sent += res.Sent
		result.Failed += res.Failed
		result.Retryable += res.Retryable
		result.Results = append(result.Results, res)
	}

	log.Printf("Manual reminders for session %s by %s: sent %d, failed %d", in.SessionID, in.TriggeredBy, result.Sent, result.Failed)
	return result, nil
}

// SendTest mails one sample of each reminder type to an admin using a
// made-up session. Nothing is written to the ledger.
func (h *ManualTriggerHandler) SendTest(ctx context.Context, in TestReminderInput) (*TestReminderResult, error) {
	if strings.TrimSpace(in.AdminEmail) == "" || len(in.ReminderTypes) == 0 {
		return nil, fmt.Errorf("%w: admin_email and reminder_types are required", ErrInvalidInput)
	}

	now := h.clock.Now()
	item := models.PendingReminderItem{
		SessionID: "test-session",
		UserID:    "test-user",
		UserEmail: in.AdminEmail,
		UserName:  in.AdminName,
		Session: models.Session{
			ID:              "test-session",
			Title:           "Sample Session",
			Description:     "This is a test reminder.",
			StartTime:       now.Add(24 * time.Hour).Truncate(time.Hour),
			DurationMinutes: 60,
			HostName:        "Session Host",
		},
	}

	result := &TestReminderResult{Results: []TestReminderOutcome{}}
	for _, reminderType := range in.ReminderTypes {
		outcome := h.sendTestOne(ctx, reminderType, item)
		if outcome.Success {
			result.Sent++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, outcome)
	}
	return result, nil
}

func (h *ManualTriggerHandler) sendTestOne(ctx context.Context, reminderType string, item models.PendingReminderItem) TestReminderOutcome {
	outcome := TestReminderOutcome{ReminderType: reminderType}

	cfg, err := h.configs.GetConfig(ctx, reminderType)
	if errors.Is(err, store.ErrNotFound) {
		outcome.Error = fmt.Sprintf("unknown reminder type %q", reminderType)
		return outcome
	}
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	rendered, err := RenderReminder(*cfg, item, h.baseURL)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	res := h.transport.Send(ctx, EmailMessage{
		ToEmail:    item.UserEmail,
		ToName:     item.UserName,
		Subject:    "[TEST] " + rendered.Subject,
		PlainText:  rendered.PlainText,
		HTML:       rendered.HTML,
		Categories: []string{"session-reminder-test", reminderType},
	})
	outcome.Success = res.Success
	outcome.ProviderMessageID = res.ProviderMessageID
	outcome.Error = res.Error
	return outcome
}
