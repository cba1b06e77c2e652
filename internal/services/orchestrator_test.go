package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/services"
	"sessionreminders/internal/store"
	"sessionreminders/internal/testutil"
)

func newOrchestrator(t *testing.T, enabled24h, enabled1h bool) (*services.Orchestrator, *fakeScheduler, *store.GormStore, *testutil.Clock) {
	t.Helper()
	s := store.New(testutil.NewTestDB(t))
	testutil.SeedConfigs(t, s.DB(), enabled24h, enabled1h)
	sched := &fakeScheduler{}
	clk := &testutil.Clock{T: baseTime}
	return services.NewOrchestrator(s, s, sched, clk), sched, s, clk
}

func TestScheduleForEnrollmentRegistersFutureOffsets(t *testing.T) {
	o, sched, _, clk := newOrchestrator(t, true, true)
	start := clk.T.Add(24*time.Hour + time.Minute)

	res, err := o.ScheduleForEnrollment(context.Background(), services.EnrollmentScheduleInput{
		SessionID: "s1", UserID: "u1", EnrollmentID: "e1", SessionStartTime: start,
	})
	if err != nil {
		t.Fatalf("ScheduleForEnrollment: %v", err)
	}
	if len(res.Registered) != 2 || len(sched.regs) != 2 {
		t.Fatalf("expected both offsets registered, got %+v", res)
	}

	want := map[string]time.Time{"24h": clk.T.Add(time.Minute), "1h": start.Add(-time.Hour)}
	for _, reg := range sched.regs {
		p := reg.payload.(services.ReminderDuePayload)
		if reg.event != services.EventReminderDue || !reg.fireAt.Equal(want[p.ReminderType]) {
			t.Fatalf("unexpected registration %+v", reg)
		}
		if p.SessionID != "s1" || p.UserID != "u1" || p.EnrollmentID != "e1" || !p.SessionStartTime.Equal(start) {
			t.Fatalf("unexpected payload %+v", p)
		}
	}
}

func TestScheduleForEnrollmentSkipsPastFireTimes(t *testing.T) {
	o, sched, _, clk := newOrchestrator(t, true, true)

	res, err := o.ScheduleForEnrollment(context.Background(), services.EnrollmentScheduleInput{
		SessionID: "s1", UserID: "u1", SessionStartTime: clk.T.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ScheduleForEnrollment: %v", err)
	}
	// 24h fires exactly now, which is not in the future
	if len(res.Registered) != 1 || res.Registered[0].ReminderType != "1h" || len(res.Skipped) != 1 {
		t.Fatalf("expected only 1h registered, got %+v", res)
	}
	if len(sched.regs) != 1 {
		t.Fatalf("expected one registration, got %d", len(sched.regs))
	}
}

func TestScheduleForEnrollmentDisabledRegistersNothing(t *testing.T) {
	o, sched, _, clk := newOrchestrator(t, false, false)
	res, err := o.ScheduleForEnrollment(context.Background(), services.EnrollmentScheduleInput{
		SessionID: "s1", UserID: "u1", SessionStartTime: clk.T.Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ScheduleForEnrollment: %v", err)
	}
	if len(res.Registered) != 0 || len(sched.regs) != 0 {
		t.Fatalf("disabled configs must register nothing, got %+v", res)
	}
}

func TestScheduleForEnrollmentIsolatesFailures(t *testing.T) {
	o, sched, _, clk := newOrchestrator(t, true, true)
	sched.failOn = "24h"

	res, err := o.ScheduleForEnrollment(context.Background(), services.EnrollmentScheduleInput{
		SessionID: "s1", UserID: "u1", SessionStartTime: clk.T.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ScheduleForEnrollment: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0].ReminderType != "24h" || len(res.Registered) != 1 {
		t.Fatalf("expected 24h failed and 1h registered, got %+v", res)
	}
}

func TestScheduleForEnrollmentValidatesInput(t *testing.T) {
	o, _, _, _ := newOrchestrator(t, true, true)
	_, err := o.ScheduleForEnrollment(context.Background(), services.EnrollmentScheduleInput{SessionID: "s1"})
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestScheduleForManualTrigger(t *testing.T) {
	o, sched, _, clk := newOrchestrator(t, true, true)
	id, err := o.ScheduleForManualTrigger(context.Background(), "s1", []string{"24h"}, "admin@example.com")
	if err != nil || id == "" {
		t.Fatalf("ScheduleForManualTrigger: %q, %v", id, err)
	}
	reg := sched.regs[0]
	p := reg.payload.(services.ManualReminderPayload)
	if reg.event != services.EventManualRequested || !reg.fireAt.Equal(clk.T) || p.TriggeredBy != "admin@example.com" || !p.RequestedAt.Equal(clk.T) {
		t.Fatalf("unexpected registration %+v", reg)
	}
}

func TestRescheduleSessionUsesCurrentStart(t *testing.T) {
	o, sched, s, clk := newOrchestrator(t, true, true)
	start := clk.T.Add(48 * time.Hour)
	testutil.SeedSession(t, s.DB(), "s1", start, "u1", "u2")

	moved := start.Add(24 * time.Hour)
	if err := s.DB().Model(&models.Session{}).Where("id = ?", "s1").Update("start_time", moved).Error; err != nil {
		t.Fatalf("move session: %v", err)
	}

	res, err := o.RescheduleSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("RescheduleSession: %v", err)
	}
	if len(res.Registered) != 4 {
		t.Fatalf("expected 2 users x 2 offsets, got %+v", res)
	}
	for _, reg := range sched.regs {
		if p := reg.payload.(services.ReminderDuePayload); !p.SessionStartTime.Equal(moved) {
			t.Fatalf("registration uses old start: %+v", p)
		}
	}

	if _, err := o.RescheduleSession(context.Background(), "missing"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
