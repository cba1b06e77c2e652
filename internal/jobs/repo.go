package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sessionreminders/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RUNNING jobs whose lock has not been refreshed for this long are assumed
// abandoned and re-queued
const defaultLockTimeout = 5 * time.Minute

const defaultMaxAttempts = 8

// Repo is a durable delayed-job queue on Postgres. Register is at-least-once:
// a claimed job whose worker stops heartbeating is handed out again after
// the lock timeout.
type Repo struct {
	db          *gorm.DB
	maxAttempts int
	lockTimeout time.Duration
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, maxAttempts: defaultMaxAttempts, lockTimeout: defaultLockTimeout}
}

// WithLockTimeout sets how long a RUNNING job may go without a heartbeat
func (r *Repo) WithLockTimeout(d time.Duration) *Repo {
	if d > 0 {
		r.lockTimeout = d
	}
	return r
}

func (r *Repo) LockTimeout() time.Duration {
	return r.lockTimeout
}

// Register stores a callback for eventName to run at fireAt with payload
// marshalled as JSON, and returns the registration id
func (r *Repo) Register(ctx context.Context, eventName string, payload any, fireAt time.Time) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", eventName, err)
	}
	job := models.ScheduledJob{
		ID:          uuid.NewString(),
		EventName:   eventName,
		Payload:     body,
		RunAt:       fireAt.UTC(),
		Status:      models.JobPending,
		MaxAttempts: r.maxAttempts,
	}
	if err := r.db.WithContext(ctx).Create(&job).Error; err != nil {
		return "", fmt.Errorf("register %s: %w", eventName, err)
	}
	return job.ID, nil
}

// Claim locks up to limit due jobs for workerID. SKIP LOCKED keeps
// concurrent workers from claiming the same row.
func (r *Repo) Claim(ctx context.Context, workerID string, limit int, now time.Time) ([]models.ScheduledJob, error) {
	now = now.UTC()
	var jobs []models.ScheduledJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ScheduledJob{}).
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", models.JobRunning, now.Add(-r.lockTimeout)).
			Updates(map[string]any{"status": models.JobPending, "locked_by": nil, "locked_at": nil}).Error; err != nil {
			return err
		}

		var ids []string
		if err := tx.Model(&models.ScheduledJob{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND run_at <= ?", models.JobPending, now).
			Order("run_at ASC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Model(&models.ScheduledJob{}).
			Where("id IN ? AND status = ?", ids, models.JobPending).
			Updates(map[string]any{"status": models.JobRunning, "locked_by": workerID, "locked_at": now}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ? AND locked_by = ?", ids, workerID).Order("run_at ASC").Find(&jobs).Error
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Touch refreshes the lock of a job workerID still holds. It reports false
// when the job was re-queued or taken over by another worker.
func (r *Repo) Touch(ctx context.Context, id, workerID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, models.JobRunning, workerID).
		Update("locked_at", now.UTC())
	return res.RowsAffected > 0, res.Error
}

func (r *Repo) MarkDone(ctx context.Context, id string, attempts int) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": models.JobDone, "attempts": attempts, "locked_by": nil, "locked_at": nil}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.JobFailed,
			"attempts":   attempts,
			"last_error": errMsg,
			"locked_by":  nil,
			"locked_at":  nil,
		}).Error
}

func (r *Repo) RetryLater(ctx context.Context, id string, attempts int, runAt time.Time, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.JobPending,
			"attempts":   attempts,
			"run_at":     runAt.UTC(),
			"last_error": errMsg,
			"locked_by":  nil,
			"locked_at":  nil,
		}).Error
}
