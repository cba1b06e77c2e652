package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"sessionreminders/internal/utils"
)

type EnrollmentScheduleInput struct {
	SessionID        string
	UserID           string
	EnrollmentID     string
	SessionStartTime time.Time
}

type Registration struct {
	ReminderType   string    `json:"reminder_type"`
	FireAt         time.Time `json:"fire_at"`
	RegistrationID string    `json:"registration_id"`
}

type RegistrationFailure struct {
	ReminderType string `json:"reminder_type"`
	Error        string `json:"error"`
}

// ScheduleResult lists what happened to every enabled reminder type.
// Skipped holds the types whose fire time had already passed.
type ScheduleResult struct {
	Registered []Registration        `json:"registered"`
	Skipped    []string              `json:"skipped"`
	Failed     []RegistrationFailure `json:"failed"`
}

type Orchestrator struct {
	configs     ConfigStore
	enrollments EnrollmentReader
	scheduler   Scheduler
	clock       utils.Clock
}

func NewOrchestrator(configs ConfigStore, enrollments EnrollmentReader, scheduler Scheduler, clock utils.Clock) *Orchestrator {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Orchestrator{configs: configs, enrollments: enrollments, scheduler: scheduler, clock: clock}
}

// ScheduleForEnrollment registers one delayed callback per enabled reminder
// type whose fire time is still in the future
func (o *Orchestrator) ScheduleForEnrollment(ctx context.Context, in EnrollmentScheduleInput) (*ScheduleResult, error) {
	if in.SessionID == "" || in.UserID == "" || in.SessionStartTime.IsZero() {
		return nil, fmt.Errorf("%w: session_id, user_id and session_start_time are required", ErrInvalidInput)
	}

	cfgs, err := o.configs.ListEnabledConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reminder configurations: %w", err)
	}

	result := &ScheduleResult{Registered: []Registration{}, Skipped: []string{}, Failed: []RegistrationFailure{}}
	now := o.clock.Now()
	start := in.SessionStartTime.UTC()

	for _, cfg := range cfgs {
		fireAt := start.Add(-cfg.Offset())
		if !fireAt.After(now) {
			result.Skipped = append(result.Skipped, cfg.ReminderType)
			continue
		}

		payload := ReminderDuePayload{
			SessionID:        in.SessionID,
			UserID:           in.UserID,
			EnrollmentID:     in.EnrollmentID,
			ReminderType:     cfg.ReminderType,
			FireAt:           fireAt,
			SessionStartTime: start,
		}
		id, err := o.scheduler.Register(ctx, EventReminderDue, payload, fireAt)
		if err != nil {
			log.Printf("Error: failed to schedule %s reminder for user %s in session %s: %v", cfg.ReminderType, in.UserID, in.SessionID, err)
			result.Failed = append(result.Failed, RegistrationFailure{ReminderType: cfg.ReminderType, Error: err.Error()})
			continue
		}
		result.Registered = append(result.Registered, Registration{ReminderType: cfg.ReminderType, FireAt: fireAt, RegistrationID: id})
	}

	return result, nil
}

// ScheduleForManualTrigger queues an immediate admin run and returns its registration id
func (o *Orchestrator) ScheduleForManualTrigger(ctx context.Context, sessionID string, reminderTypes []string, triggeredBy string) (string, error) {
	if sessionID == "" || len(reminderTypes) == 0 {
		return "", fmt.Errorf("%w: session_id and reminder_types are required", ErrInvalidInput)
	}
	now := o.clock.Now()
	payload := ManualReminderPayload{
		SessionID:     sessionID,
		ReminderTypes: reminderTypes,
		TriggeredBy:   triggeredBy,
		RequestedAt:   now,
	}
	id, err := o.scheduler.Register(ctx, EventManualRequested, payload, now)
	if err != nil {
		return "", fmt.Errorf("register manual reminder run: %w", err)
	}
	log.Printf("Manual reminder run %s queued for session %s by %s (%v)", id, sessionID, triggeredBy, reminderTypes)
	return id, nil
}

// RescheduleSession re-registers reminders for every active enrollment using
// the session's current start time. Callbacks registered for the old start
// are dropped as stale when they fire.
func (o *Orchestrator) RescheduleSession(ctx context.Context, sessionID string) (*ScheduleResult, error) {
	session, err := o.enrollments.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	enrollments, err := o.enrollments.ListEnrollments(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments for session %s: %w", sessionID, err)
	}

	total := &ScheduleResult{Registered: []Registration{}, Skipped: []string{}, Failed: []RegistrationFailure{}}
	for _, e := range enrollments {
		res, err := o.ScheduleForEnrollment(ctx, EnrollmentScheduleInput{
			SessionID:        sessionID,
			UserID:           e.UserID,
			EnrollmentID:     e.ID,
			SessionStartTime: session.StartTime,
		})
		if err != nil {
			return nil, err
		}
		total.Registered = append(total.Registered, res.Registered...)
		total.Skipped = append(total.Skipped, res.Skipped...)
		total.Failed = append(total.Failed, res.Failed...)
	}
	log.Printf("Rescheduled session %s: %d enrollments, %d registered, %d failed",
		sessionID, len(enrollments), len(total.Registered), len(total.Failed))
	return total, nil
}
