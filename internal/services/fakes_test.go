package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/services"
	"sessionreminders/internal/store"
	"sessionreminders/internal/testutil"
)

var baseTime = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// fakeTransport records messages; fail decides the result per recipient
type fakeTransport struct {
	mu   sync.Mutex
	sent []services.EmailMessage
	fail func(msg services.EmailMessage) *services.SendResult
}

func (f *fakeTransport) Send(_ context.Context, msg services.EmailMessage) services.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.fail != nil {
		if res := f.fail(msg); res != nil {
			return *res
		}
	}
	return services.SendResult{Success: true, StatusCode: http.StatusAccepted, ProviderMessageID: "msg-" + msg.ToEmail}
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func transientFor(emails ...string) func(services.EmailMessage) *services.SendResult {
	set := map[string]bool{}
	for _, e := range emails {
		set[e] = true
	}
	return func(msg services.EmailMessage) *services.SendResult {
		if set[msg.ToEmail] {
			return &services.SendResult{StatusCode: http.StatusServiceUnavailable, Error: "service unavailable"}
		}
		return nil
	}
}

type registration struct {
	event   string
	payload any
	fireAt  time.Time
}

type fakeScheduler struct {
	regs   []registration
	failOn string // reminder type whose registration fails
}

func (f *fakeScheduler) Register(_ context.Context, event string, payload any, fireAt time.Time) (string, error) {
	if p, ok := payload.(services.ReminderDuePayload); ok && p.ReminderType == f.failOn {
		return "", errors.New("scheduler unavailable")
	}
	f.regs = append(f.regs, registration{event: event, payload: payload, fireAt: fireAt})
	return fmt.Sprintf("reg-%d", len(f.regs)), nil
}

// flakyLedger fails the first n MarkSent calls
type flakyLedger struct {
	*store.GormStore
	mu       sync.Mutex
	failSent int
}

func (l *flakyLedger) MarkSent(ctx context.Context, key models.LedgerKey, id string, at time.Time) error {
	l.mu.Lock()
	if l.failSent > 0 {
		l.failSent--
		l.mu.Unlock()
		return errors.New("connection reset")
	}
	l.mu.Unlock()
	return l.GormStore.MarkSent(ctx, key, id, at)
}

// interleavedTransport runs during() inside the first Send, before that send
// fails with a transient error
type interleavedTransport struct {
	*fakeTransport
	once   sync.Once
	during func()
}

func (t *interleavedTransport) Send(ctx context.Context, msg services.EmailMessage) services.SendResult {
	first := false
	t.once.Do(func() { first = true })
	if !first {
		return t.fakeTransport.Send(ctx, msg)
	}
	t.during()
	return services.SendResult{StatusCode: http.StatusServiceUnavailable, Error: "service unavailable"}
}

type fixture struct {
	store     *store.GormStore
	transport *fakeTransport
	clock     *testutil.Clock
	executor  *services.DeliveryExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(testutil.NewTestDB(t))
	f := &fixture{
		store:     s,
		transport: &fakeTransport{},
		clock:     &testutil.Clock{T: baseTime},
	}
	f.executor = services.NewDeliveryExecutor(s, s, s, f.transport, services.ExecutorOptions{
		BatchSize:   2,
		Concurrency: 3,
		MaxRetries:  3,
		BaseURL:     "https://app.example.com",
		Clock:       f.clock,
	})
	return f
}

func (f *fixture) ledger(t *testing.T, sessionID, userID, reminderType string) *models.ReminderLedgerEntry {
	t.Helper()
	var entry models.ReminderLedgerEntry
	if err := f.store.DB().
		Where("session_id = ? AND user_id = ? AND reminder_type = ?", sessionID, userID, reminderType).
		First(&entry).Error; err != nil {
		t.Fatalf("load ledger %s/%s/%s: %v", sessionID, userID, reminderType, err)
	}
	return &entry
}

func (f *fixture) ledgerCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.store.DB().Model(&models.ReminderLedgerEntry{}).Count(&n).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return n
}
