package services

import (
	"context"
	"fmt"
	"time"

	"sessionreminders/internal/models"
)

// BatchPlan partitions the input of DedupAndBatch: every item is in exactly
// one batch or in Skipped
type BatchPlan struct {
	Batches [][]models.PendingReminderItem
	Skipped []models.PendingReminderItem
}

type BatchEngine struct {
	ledger LedgerLookup
}

func NewBatchEngine(ledger LedgerLookup) *BatchEngine {
	return &BatchEngine{ledger: ledger}
}

// DedupAndBatch drops items whose ledger entry is already sent (or failed
// for good) and chunks the rest into batches of batchSize, keeping input order
func (e *BatchEngine) DedupAndBatch(ctx context.Context, items []models.PendingReminderItem, reminderType string, batchSize int) (BatchPlan, error) {
	return e.plan(ctx, items, reminderType, batchSize, models.ReminderLedgerEntry.Closed)
}

// DedupSince is the admin resend variant: only tuples sent (or closed by a
// permanent failure) at or after since are skipped, so a retried resend run
// does not mail the users it already reached
func (e *BatchEngine) DedupSince(ctx context.Context, items []models.PendingReminderItem, reminderType string, batchSize int, since time.Time) (BatchPlan, error) {
	return e.plan(ctx, items, reminderType, batchSize, func(entry models.ReminderLedgerEntry) bool {
		switch {
		case entry.Status == models.LedgerSent:
			return entry.SentAt != nil && !entry.SentAt.Before(since)
		case entry.Status == models.LedgerFailed && entry.Permanent:
			return !entry.UpdatedAt.Before(since)
		}
		return false
	})
}

func (e *BatchEngine) plan(ctx context.Context, items []models.PendingReminderItem, reminderType string, batchSize int, skip func(models.ReminderLedgerEntry) bool) (BatchPlan, error) {
	var plan BatchPlan
	if len(items) == 0 {
		return plan, nil
	}

	// one ledger query per session; items normally share a single session
	usersBySession := map[string][]string{}
	var sessionOrder []string
	for _, item := range items {
		if _, ok := usersBySession[item.SessionID]; !ok {
			sessionOrder = append(sessionOrder, item.SessionID)
		}
		usersBySession[item.SessionID] = append(usersBySession[item.SessionID], item.UserID)
	}

	entries := make(map[string]map[string]models.ReminderLedgerEntry, len(sessionOrder))
	for _, sessionID := range sessionOrder {
		found, err := e.ledger.FindLedgerEntries(ctx, sessionID, reminderType, usersBySession[sessionID])
		if err != nil {
			return BatchPlan{}, fmt.Errorf("read reminder ledger for session %s: %w", sessionID, err)
		}
		entries[sessionID] = found
	}

	seen := make(map[models.LedgerKey]bool, len(items))
	var pending []models.PendingReminderItem
	for _, item := range items {
		key := models.LedgerKey{SessionID: item.SessionID, UserID: item.UserID, ReminderType: reminderType}
		if seen[key] {
			plan.Skipped = append(plan.Skipped, item)
			continue
		}
		seen[key] = true

		if entry, ok := entries[item.SessionID][item.UserID]; ok && skip(entry) {
			plan.Skipped = append(plan.Skipped, item)
			continue
		}
		pending = append(pending, item)
	}

	plan.Batches = Chunk(pending, batchSize)
	return plan, nil
}

// Chunk splits items into consecutive batches of at most size (minimum 1)
func Chunk(items []models.PendingReminderItem, size int) [][]models.PendingReminderItem {
	if size < 1 {
		size = 1
	}
	var batches [][]models.PendingReminderItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
