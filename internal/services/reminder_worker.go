package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"sessionreminders/internal/jobs"
	"sessionreminders/internal/models"
)

// ReminderWorker turns fired job-queue callbacks into delivery runs
type ReminderWorker struct {
	executor Executor
	manual   *ManualTriggerHandler
}

func NewReminderWorker(executor Executor, manual *ManualTriggerHandler) *ReminderWorker {
	return &ReminderWorker{executor: executor, manual: manual}
}

// Register binds the reminder events to w
func (r *ReminderWorker) Register(w *jobs.Worker) {
	w.On(EventReminderDue, r.handleDue)
	w.On(EventManualRequested, r.handleManual)
}

func (r *ReminderWorker) handleDue(ctx context.Context, job *models.ScheduledJob) error {
	var p ReminderDuePayload
	if err := jobs.Decode(job, &p); err != nil {
		return jobs.Permanent(err)
	}

	req := ExecuteRequest{
		SessionID:        p.SessionID,
		ReminderType:     p.ReminderType,
		SessionStartTime: p.SessionStartTime,
	}
	if p.UserID != "" {
		req.UserIDs = []string{p.UserID}
	}

	res, err := r.executor.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return jobs.Permanent(err)
		}
		return err
	}
	if res.Retryable > 0 {
		return fmt.Errorf("%d of %d %s reminders for session %s need a retry", res.Retryable, res.Attempted, p.ReminderType, p.SessionID)
	}
	return nil
}

func (r *ReminderWorker) handleManual(ctx context.Context, job *models.ScheduledJob) error {
	var p ManualReminderPayload
	if err := jobs.Decode(job, &p); err != nil {
		return jobs.Permanent(err)
	}

	res, err := r.manual.Trigger(ctx, ManualTriggerInput{
		SessionID:     p.SessionID,
		ReminderTypes: p.ReminderTypes,
		TriggeredBy:   p.TriggeredBy,
		RequestedAt:   p.RequestedAt,
	})
	switch {
	case errors.Is(err, ErrNoEnrollments), errors.Is(err, ErrInvalidInput):
		log.Printf("Warning: manual reminder run %s dropped: %v", job.ID, err)
		return jobs.Permanent(err)
	case err != nil:
		return err
	}
	if res.Retryable > 0 {
		return fmt.Errorf("%d manual reminders for session %s need a retry", res.Retryable, p.SessionID)
	}
	return nil
}
