package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/store"
	"sessionreminders/internal/utils"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ExecutorOptions are the delivery tunables
type ExecutorOptions struct {
	BatchSize      int
	Concurrency    int
	MaxRetries     int
	SendsPerSecond float64
	BaseURL        string
	Clock          utils.Clock
}

// ExecuteRequest selects what one delivery run sends
type ExecuteRequest struct {
	SessionID    string
	ReminderType string
	// UserIDs restricts the run to these users; they must still be actively enrolled
	UserIDs []string
	// Resend is the admin path: tuples already sent before ResendSince are mailed again
	Resend      bool
	ResendSince time.Time
	// SessionStartTime is the start the callback was scheduled for; zero skips the check
	SessionStartTime time.Time
}

// Outcome statuses
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

type RecipientOutcome struct {
	UserID            string `json:"user_id"`
	Email             string `json:"email"`
	Status            string `json:"status"`
	Retryable         bool   `json:"retryable,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

type DeliveryResult struct {
	SessionID    string             `json:"session_id"`
	ReminderType string             `json:"reminder_type"`
	Attempted    int                `json:"attempted"`
	Sent         int                `json:"sent"`
	Failed       int                `json:"failed"`
	Skipped      int                `json:"skipped"`
	Retryable    int                `json:"retryable"`
	Disabled     bool               `json:"disabled,omitempty"`
	Stale        bool               `json:"stale,omitempty"`
	Outcomes     []RecipientOutcome `json:"outcomes"`
}

type DeliveryExecutor struct {
	configs     ConfigStore
	enrollments EnrollmentReader
	ledger      Ledger
	transport   EmailTransport
	batcher     *BatchEngine
	limiter     *rate.Limiter
	opts        ExecutorOptions
}

func NewDeliveryExecutor(configs ConfigStore, enrollments EnrollmentReader, ledger Ledger, transport EmailTransport, opts ExecutorOptions) *DeliveryExecutor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock{}
	}
	limit := rate.Inf
	if opts.SendsPerSecond > 0 {
		limit = rate.Limit(opts.SendsPerSecond)
	}
	burst := opts.Concurrency
	return &DeliveryExecutor{
		configs:     configs,
		enrollments: enrollments,
		ledger:      ledger,
		transport:   transport,
		batcher:     NewBatchEngine(ledger),
		limiter:     rate.NewLimiter(limit, burst),
		opts:        opts,
	}
}

// Execute delivers one reminder type for one session. Individual recipient
// failures are reported in the result; only an unreachable store is an error.
func (e *DeliveryExecutor) Execute(ctx context.Context, req ExecuteRequest) (*DeliveryResult, error) {
	if req.SessionID == "" || req.ReminderType == "" {
		return nil, fmt.Errorf("%w: session_id and reminder_type are required", ErrInvalidInput)
	}
	result := &DeliveryResult{SessionID: req.SessionID, ReminderType: req.ReminderType, Outcomes: []RecipientOutcome{}}

	cfg, err := e.configs.GetConfig(ctx, req.ReminderType)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("Warning: reminder type %q is not configured, nothing sent for session %s", req.ReminderType, req.SessionID)
		result.Disabled = true
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reminder configuration %s: %w", req.ReminderType, err)
	}
	if !cfg.IsEnabled {
		log.Printf("Reminder type %s is disabled, nothing sent for session %s", req.ReminderType, req.SessionID)
		result.Disabled = true
		return result, nil
	}

	session, err := e.enrollments.GetSession(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("Warning: session %s no longer exists, %s reminder dropped", req.SessionID, req.ReminderType)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", req.SessionID, err)
	}
	if !req.SessionStartTime.IsZero() && !sameInstant(req.SessionStartTime, session.StartTime) {
		log.Printf("Session %s moved from %s to %s, stale %s reminder dropped", req.SessionID,
			req.SessionStartTime.UTC().Format(time.RFC3339), session.StartTime.UTC().Format(time.RFC3339), req.ReminderType)
		result.Stale = true
		return result, nil
	}

	userIDs := req.UserIDs
	if userIDs != nil && len(userIDs) == 0 {
		return result, nil
	}
	recipients, err := e.enrollments.ListRecipients(ctx, req.SessionID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list recipients for session %s: %w", req.SessionID, err)
	}

	items := make([]models.PendingReminderItem, 0, len(recipients))
	for _, r := range recipients {
		items = append(items, models.PendingReminderItem{
			SessionID: req.SessionID,
			UserID:    r.UserID,
			UserEmail: r.Email,
			UserName:  r.Name,
			Session:   *session,
		})
	}

	var (
		plan        BatchPlan
		resendSince *time.Time
	)
	if req.Resend {
		since := req.ResendSince
		if since.IsZero() {
			since = e.opts.Clock.Now()
		}
		resendSince = &since
		plan, err = e.batcher.DedupSince(ctx, items, req.ReminderType, e.opts.BatchSize, since)
	} else {
		plan, err = e.batcher.DedupAndBatch(ctx, items, req.ReminderType, e.opts.BatchSize)
	}
	if err != nil {
		return nil, err
	}

	for _, item := range plan.Skipped {
		result.Skipped++
		result.Outcomes = append(result.Outcomes, RecipientOutcome{UserID: item.UserID, Email: item.UserEmail, Status: OutcomeSkipped})
	}

	// batches run one after another; sends inside a batch share the concurrency limit
	for _, batch := range plan.Batches {
		outcomes := make([]RecipientOutcome, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Concurrency)
		for i := range batch {
			i := i
			g.Go(func() error {
				outcomes[i] = e.deliverOne(gctx, *cfg, batch[i], resendSince)
				return nil
			})
		}
		_ = g.Wait()

		for _, o := range outcomes {
			result.Outcomes = append(result.Outcomes, o)
			if o.Status == OutcomeSkipped {
				result.Skipped++
				continue
			}
			result.Attempted++
			switch o.Status {
			case OutcomeSent:
				result.Sent++
			default:
				result.Failed++
				if o.Retryable {
					result.Retryable++
				}
			}
		}
	}

	log.Printf("Reminder %s for session %s: attempted %d, sent %d, failed %d (%d retryable), skipped %d",
		req.ReminderType, req.SessionID, result.Attempted, result.Sent, result.Failed, result.Retryable, result.Skipped)
	return result, nil
}

func (e *DeliveryExecutor) deliverOne(ctx context.Context, cfg models.ReminderConfiguration, item models.PendingReminderItem, resendSince *time.Time) RecipientOutcome {
	key := models.LedgerKey{SessionID: item.SessionID, UserID: item.UserID, ReminderType: cfg.ReminderType}
	out := RecipientOutcome{UserID: item.UserID, Email: item.UserEmail, Status: OutcomeFailed}

	claimed, err := e.ledger.BeginAttempt(ctx, key, resendSince)
	if err != nil {
		log.Printf("Error: failed to record attempt for %s/%s/%s: %v", key.SessionID, key.UserID, key.ReminderType, err)
		out.Retryable = true
		out.Error = err.Error()
		return out
	}
	if !claimed {
		// closed by a concurrent run since the dedup read
		out.Status = OutcomeSkipped
		return out
	}

	rendered, err := RenderReminder(cfg, item, e.opts.BaseURL)
	if err != nil {
		out.Error = err.Error()
		e.recordFailure(ctx, key, &out, false)
		return out
	}

	if err := e.limiter.Wait(ctx); err != nil {
		// the row stays pending; the next run picks it up
		out.Retryable = true
		out.Error = err.Error()
		return out
	}

	res := e.transport.Send(ctx, EmailMessage{
		ToEmail:    item.UserEmail,
		ToName:     item.UserName,
		Subject:    rendered.Subject,
		PlainText:  rendered.PlainText,
		HTML:       rendered.HTML,
		Categories: []string{"session-reminder", cfg.ReminderType},
	})
	if res.Success {
		if err := e.ledger.MarkSent(ctx, key, res.ProviderMessageID, e.opts.Clock.Now()); err != nil {
			log.Printf("Error: reminder sent to %s but ledger update failed: %v", item.UserEmail, err)
			out.Retryable = true
			out.Error = err.Error()
			return out
		}
		out.Status = OutcomeSent
		out.ProviderMessageID = res.ProviderMessageID
		return out
	}

	out.Error = res.Error
	e.recordFailure(ctx, key, &out, res.Transient())
	return out
}

func (e *DeliveryExecutor) recordFailure(ctx context.Context, key models.LedgerKey, out *RecipientOutcome, transient bool) {
	entry, err := e.ledger.MarkFailed(ctx, key, out.Error, transient, e.opts.MaxRetries)
	if err != nil {
		log.Printf("Error: failed to record failure for %s/%s/%s: %v", key.SessionID, key.UserID, key.ReminderType, err)
		out.Retryable = true
		return
	}
	if entry.Status == models.LedgerSent {
		log.Printf("Warning: %s reminder to %s failed but another run already delivered it: %s", key.ReminderType, out.Email, out.Error)
		out.Status = OutcomeSkipped
		return
	}
	out.Retryable = !entry.Permanent
	if entry.Permanent {
		log.Printf("Warning: %s reminder to %s failed permanently after %d retries: %s", key.ReminderType, out.Email, entry.RetryCount, out.Error)
	}
}

// sameInstant compares at second precision; database round trips drop sub-second digits
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}
