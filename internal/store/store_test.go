package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/store"
	"sessionreminders/internal/testutil"

	"gorm.io/gorm"
)

func TestListRecipientsSkipsCancelledAndFiltersUsers(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	start := time.Date(2026, 11, 1, 15, 0, 0, 0, time.UTC)
	testutil.SeedSession(t, db, "s1", start, "u1", "u2", "u3")

	if err := db.Model(&models.Enrollment{}).Where("user_id = ?", "u2").Update("status", models.EnrollmentCancelled).Error; err != nil {
		t.Fatalf("cancel: %v", err)
	}

	all, err := s.ListRecipients(ctx, "s1", nil)
	if err != nil {
		t.Fatalf("ListRecipients: %v", err)
	}
	if len(all) != 2 || all[0].UserID != "u1" || all[1].UserID != "u3" {
		t.Fatalf("unexpected recipients: %+v", all)
	}
	if all[0].Email != "u1@example.com" || all[0].Name != "User u1" {
		t.Fatalf("profile not joined: %+v", all[0])
	}

	some, err := s.ListRecipients(ctx, "s1", []string{"u2", "u3", "nobody"})
	if err != nil {
		t.Fatalf("ListRecipients filtered: %v", err)
	}
	if len(some) != 1 || some[0].UserID != "u3" {
		t.Fatalf("expected only u3, got %+v", some)
	}

	none, err := s.ListRecipients(ctx, "s1", []string{})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no recipients for empty filter, got %+v, %v", none, err)
	}

	count, err := s.CountEnrollments(ctx, "s1")
	if err != nil || count != 2 {
		t.Fatalf("expected 2 active enrollments, got %d, %v", count, err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := store.New(testutil.NewTestDB(t))
	if _, err := s.GetSession(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfigsEnabledOrderAndUpdate(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	testutil.SeedConfigs(t, db, true, false)

	enabled, err := s.ListEnabledConfigs(ctx)
	if err != nil {
		t.Fatalf("ListEnabledConfigs: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ReminderType != "24h" {
		t.Fatalf("unexpected enabled configs: %+v", enabled)
	}

	on := true
	cfg, err := s.UpdateConfig(ctx, "1h", models.UpdateReminderConfigRequest{IsEnabled: &on})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if !cfg.IsEnabled || cfg.MinutesBefore != 60 {
		t.Fatalf("unexpected config after update: %+v", cfg)
	}

	if _, err := s.UpdateConfig(ctx, "nope", models.UpdateReminderConfigRequest{IsEnabled: &on}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertConfigsOverwrite(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	testutil.SeedConfigs(t, db, true, true)

	seed := []models.ReminderConfiguration{
		{ReminderType: "1h", MinutesBefore: 90, DisplayName: "90 minutes", SubjectTemplate: "Soon: {session_title}", IsEnabled: false},
		{ReminderType: "15m", MinutesBefore: 15, DisplayName: "15 minutes", SubjectTemplate: "Now: {session_title}", IsEnabled: true, SortOrder: 3},
	}
	if err := s.UpsertConfigs(ctx, seed, false); err != nil {
		t.Fatalf("UpsertConfigs keep: %v", err)
	}
	cfg, _ := s.GetConfig(ctx, "1h")
	if cfg.MinutesBefore != 60 {
		t.Fatalf("existing config must be kept, got %+v", cfg)
	}
	if _, err := s.GetConfig(ctx, "15m"); err != nil {
		t.Fatalf("new config must be inserted: %v", err)
	}

	if err := s.UpsertConfigs(ctx, seed[:1], true); err != nil {
		t.Fatalf("UpsertConfigs overwrite: %v", err)
	}
	cfg, _ = s.GetConfig(ctx, "1h")
	if cfg.MinutesBefore != 90 || cfg.IsEnabled {
		t.Fatalf("config must be overwritten, got %+v", cfg)
	}
}

func ledgerRow(t *testing.T, db *gorm.DB, key models.LedgerKey) models.ReminderLedgerEntry {
	t.Helper()
	var entry models.ReminderLedgerEntry
	if err := db.Where("session_id = ? AND user_id = ? AND reminder_type = ?", key.SessionID, key.UserID, key.ReminderType).
		First(&entry).Error; err != nil {
		t.Fatalf("load ledger row %+v: %v", key, err)
	}
	return entry
}

func TestLedgerUpsertKeepsOneRowPerKey(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	key := models.LedgerKey{SessionID: "s1", UserID: "u1", ReminderType: "24h"}
	sentAt := time.Date(2026, 10, 31, 15, 0, 0, 0, time.UTC)

	claimed, err := s.BeginAttempt(ctx, key, nil)
	if err != nil || !claimed {
		t.Fatalf("first BeginAttempt: claimed=%v err=%v", claimed, err)
	}
	if err := s.MarkSent(ctx, key, "msg-1", sentAt); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	claimed, err = s.BeginAttempt(ctx, key, nil)
	if err != nil || claimed {
		t.Fatalf("a sent row must not be claimed again: claimed=%v err=%v", claimed, err)
	}

	var count int64
	db.Model(&models.ReminderLedgerEntry{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 ledger row, got %d", count)
	}

	entry := ledgerRow(t, db, key)
	if entry.Status != models.LedgerSent || entry.ProviderMessageID == nil || *entry.ProviderMessageID != "msg-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.SentAt == nil || !entry.SentAt.Equal(sentAt) {
		t.Fatalf("unexpected sent_at: %v", entry.SentAt)
	}
}

func TestSentRowSurvivesLateFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	key := models.LedgerKey{SessionID: "s1", UserID: "u1", ReminderType: "1h"}
	sentAt := time.Date(2026, 10, 31, 15, 0, 0, 0, time.UTC)

	// two overlapping runs both claim the pending row; the second one delivers first
	for i := 0; i < 2; i++ {
		if claimed, err := s.BeginAttempt(ctx, key, nil); err != nil || !claimed {
			t.Fatalf("BeginAttempt %d: claimed=%v err=%v", i, claimed, err)
		}
	}
	if err := s.MarkSent(ctx, key, "msg-1", sentAt); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	entry, err := s.MarkFailed(ctx, key, "service unavailable", true, 3)
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if entry.Status != models.LedgerSent || entry.RetryCount != 0 || entry.LastError != nil {
		t.Fatalf("late failure must not reopen a sent row, got %+v", entry)
	}
	if row := ledgerRow(t, db, key); row.Status != models.LedgerSent || row.Permanent {
		t.Fatalf("unexpected stored row %+v", row)
	}
}

func TestBeginAttemptResendWindow(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	key := models.LedgerKey{SessionID: "s1", UserID: "u1", ReminderType: "1h"}
	sentAt := time.Date(2026, 10, 31, 15, 0, 0, 0, time.UTC)

	if err := s.MarkSent(ctx, key, "msg-1", sentAt); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	later := sentAt.Add(time.Minute)
	claimed, err := s.BeginAttempt(ctx, key, &later)
	if err != nil || !claimed {
		t.Fatalf("resend must claim a row sent before the window: claimed=%v err=%v", claimed, err)
	}
	if row := ledgerRow(t, db, key); row.Status != models.LedgerPending {
		t.Fatalf("expected pending after resend claim, got %+v", row)
	}

	if err := s.MarkSent(ctx, key, "msg-2", later.Add(time.Second)); err != nil {
		t.Fatalf("MarkSent resend: %v", err)
	}
	claimed, err = s.BeginAttempt(ctx, key, &later)
	if err != nil || claimed {
		t.Fatalf("a row sent inside the window must not be claimed: claimed=%v err=%v", claimed, err)
	}
}

func TestMarkFailedCountsRetriesUntilPermanent(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	key := models.LedgerKey{SessionID: "s1", UserID: "u1", ReminderType: "1h"}

	for attempt := 1; attempt <= 3; attempt++ {
		if claimed, err := s.BeginAttempt(ctx, key, nil); err != nil || !claimed {
			t.Fatalf("BeginAttempt: claimed=%v err=%v", claimed, err)
		}
		entry, err := s.MarkFailed(ctx, key, "timeout", true, 3)
		if err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
		if entry.RetryCount != attempt {
			t.Fatalf("attempt %d: expected retry_count %d, got %d", attempt, attempt, entry.RetryCount)
		}
		if entry.Permanent != (attempt == 3) {
			t.Fatalf("attempt %d: unexpected permanent=%v", attempt, entry.Permanent)
		}
		if entry.LastError == nil || *entry.LastError != "timeout" {
			t.Fatalf("last_error not recorded: %+v", entry)
		}
	}

	if claimed, err := s.BeginAttempt(ctx, key, nil); err != nil || claimed {
		t.Fatalf("a permanent failure must not be claimed: claimed=%v err=%v", claimed, err)
	}
}

func TestMarkFailedPermanentKeepsRetryCount(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	key := models.LedgerKey{SessionID: "s1", UserID: "u1", ReminderType: "1h"}

	if _, err := s.MarkFailed(ctx, key, "timeout", true, 3); err != nil {
		t.Fatalf("MarkFailed transient: %v", err)
	}
	entry, err := s.MarkFailed(ctx, key, "invalid address", false, 3)
	if err != nil {
		t.Fatalf("MarkFailed permanent: %v", err)
	}
	if entry.RetryCount != 1 || !entry.Permanent || entry.Status != models.LedgerFailed {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	found, err := s.FindLedgerEntries(ctx, "s1", "1h", []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("FindLedgerEntries: %v", err)
	}
	if len(found) != 1 || !found["u1"].Closed() {
		t.Fatalf("expected closed entry for u1, got %+v", found)
	}
}

func TestListLedgerFilters(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.MarkSent(ctx, models.LedgerKey{SessionID: "s1", UserID: "u1", ReminderType: "24h"}, "m1", now)
	_ = s.MarkSent(ctx, models.LedgerKey{SessionID: "s1", UserID: "u2", ReminderType: "1h"}, "m2", now)

	entries, err := s.ListLedger(ctx, models.LedgerFilter{ReminderType: "1h"}, 0)
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != "u2" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	future := now.Add(time.Hour)
	entries, err = s.ListLedger(ctx, models.LedgerFilter{From: &future}, 0)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected no entries after %v, got %+v, %v", future, entries, err)
	}
}

func TestCountLedgerGroupsByTypeStatusAndDay(t *testing.T) {
	db := testutil.NewTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	day1 := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	rows := []models.ReminderLedgerEntry{
		{SessionID: "s1", UserID: "u1", ReminderType: "24h", Status: models.LedgerSent, UpdatedAt: day1},
		{SessionID: "s1", UserID: "u2", ReminderType: "24h", Status: models.LedgerSent, UpdatedAt: day1.Add(time.Hour)},
		{SessionID: "s1", UserID: "u3", ReminderType: "24h", Status: models.LedgerFailed, UpdatedAt: day2},
		{SessionID: "s1", UserID: "u1", ReminderType: "1h", Status: models.LedgerSent, UpdatedAt: day2},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	counts, err := s.CountLedger(ctx, models.LedgerFilter{ReminderType: "24h"})
	if err != nil {
		t.Fatalf("CountLedger: %v", err)
	}
	want := []models.LedgerCount{
		{ReminderType: "24h", Status: models.LedgerSent, Day: "2026-10-16", Count: 2},
		{ReminderType: "24h", Status: models.LedgerFailed, Day: "2026-10-17", Count: 1},
	}
	if len(counts) != len(want) {
		t.Fatalf("expected %d groups, got %+v", len(want), counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("group %d: expected %+v, got %+v", i, want[i], counts[i])
		}
	}

	from := day2
	counts, err = s.CountLedger(ctx, models.LedgerFilter{From: &from})
	if err != nil || len(counts) != 2 {
		t.Fatalf("expected the two day-2 groups, got %+v, %v", counts, err)
	}
}
