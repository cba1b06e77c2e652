package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/utils"
)

// HandlerFunc processes one job. A nil return completes the job; an error
// schedules a retry unless it was wrapped with Permanent.
type HandlerFunc func(ctx context.Context, job *models.ScheduledJob) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Decode unmarshals the job payload into v
func Decode(job *models.ScheduledJob, v any) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", job.EventName, err)
	}
	return nil
}

type Worker struct {
	id        string
	repo      *Repo
	clock     utils.Clock
	interval  time.Duration
	heartbeat time.Duration
	batch     int
	handlers  map[string]HandlerFunc
}

func NewWorker(repo *Repo, id string, interval time.Duration, batch int) *Worker {
	if batch <= 0 {
		batch = 1
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		id:       id,
		repo:     repo,
		clock:    utils.SystemClock{},
		interval:  interval,
		heartbeat: repo.LockTimeout() / 3,
		batch:     batch,
		handlers:  map[string]HandlerFunc{},
	}
}

// WithClock replaces the clock used to decide which jobs are due
func (w *Worker) WithClock(c utils.Clock) *Worker {
	w.clock = c
	return w
}

// WithHeartbeat sets how often a running job's lock is refreshed
func (w *Worker) WithHeartbeat(d time.Duration) *Worker {
	if d > 0 {
		w.heartbeat = d
	}
	return w
}

// On registers the handler invoked for eventName
func (w *Worker) On(eventName string, h HandlerFunc) {
	w.handlers[eventName] = h
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("Job worker %s started (interval %v, batch %d)", w.id, w.interval, w.batch)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Job worker %s stopped", w.id)
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Error: worker %s claim failed: %v", w.id, err)
			}
		}
	}
}

// RunOnce claims one batch of due jobs and handles them, returning how many ran
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.repo.Claim(ctx, w.id, w.batch, w.clock.Now())
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		w.handle(ctx, &jobs[i])
	}
	return len(jobs), nil
}

func (w *Worker) handle(ctx context.Context, job *models.ScheduledJob) {
	attempts := job.Attempts + 1
	// job state is recorded even when shutdown cancels ctx mid-run
	bookkeeping := context.WithoutCancel(ctx)

	h, ok := w.handlers[job.EventName]
	if !ok {
		log.Printf("Error: job %s has unknown event %q", job.ID, job.EventName)
		w.report(w.repo.MarkFailed(bookkeeping, job.ID, attempts, "unknown event "+job.EventName), job)
		return
	}

	stop := w.keepLocked(ctx, job)
	err := h(ctx, job)
	stop()

	switch {
	case err == nil:
		w.report(w.repo.MarkDone(bookkeeping, job.ID, attempts), job)
	case IsPermanent(err):
		log.Printf("Error: job %s (%s) failed permanently: %v", job.ID, job.EventName, err)
		w.report(w.repo.MarkFailed(bookkeeping, job.ID, attempts, err.Error()), job)
	default:
		w.retry(bookkeeping, job, attempts, err)
	}
}

// keepLocked refreshes the job lock until the returned stop func is called
func (w *Worker) keepLocked(ctx context.Context, job *models.ScheduledJob) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				held, err := w.repo.Touch(hbCtx, job.ID, w.id, w.clock.Now())
				if err != nil && hbCtx.Err() == nil {
					log.Printf("Warning: failed to refresh lock on job %s: %v", job.ID, err)
				} else if err == nil && !held {
					log.Printf("Warning: worker %s lost the lock on job %s", w.id, job.ID)
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (w *Worker) retry(ctx context.Context, job *models.ScheduledJob, attempts int, cause error) {
	if attempts >= job.MaxAttempts {
		log.Printf("Error: job %s (%s) gave up after %d attempts: %v", job.ID, job.EventName, attempts, cause)
		w.report(w.repo.MarkFailed(ctx, job.ID, attempts, cause.Error()), job)
		return
	}

	next := w.clock.Now().Add(Backoff(attempts))
	log.Printf("Warning: job %s (%s) attempt %d failed, retrying at %s: %v",
		job.ID, job.EventName, attempts, next.Format(time.RFC3339), cause)
	w.report(w.repo.RetryLater(ctx, job.ID, attempts, next, cause.Error()), job)
}

func (w *Worker) report(err error, job *models.ScheduledJob) {
	if err != nil {
		log.Printf("Error: failed to update job %s: %v", job.ID, err)
	}
}

// Backoff is 2^attempts seconds, capped at ten minutes
func Backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}
