package services_test

import (
	"context"
	"testing"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/services"
)

type staticLedger []models.ReminderLedgerEntry

// rows are kept most recent first
func (s staticLedger) matching(filter models.LedgerFilter) []models.ReminderLedgerEntry {
	var out []models.ReminderLedgerEntry
	for _, e := range s {
		if filter.ReminderType != "" && e.ReminderType != filter.ReminderType {
			continue
		}
		if filter.From != nil && e.UpdatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.UpdatedAt.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s staticLedger) ListLedger(_ context.Context, filter models.LedgerFilter, limit int) ([]models.ReminderLedgerEntry, error) {
	out := s.matching(filter)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s staticLedger) CountLedger(_ context.Context, filter models.LedgerFilter) ([]models.LedgerCount, error) {
	idx := map[models.LedgerCount]int{}
	var out []models.LedgerCount
	for _, e := range s.matching(filter) {
		key := models.LedgerCount{ReminderType: e.ReminderType, Status: e.Status, Day: e.UpdatedAt.UTC().Format("2006-01-02")}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, key)
		}
		out[i].Count++
	}
	return out, nil
}

func TestStatsAggregates(t *testing.T) {
	day1 := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	var rows staticLedger
	for i := 0; i < 25; i++ {
		at := day2
		if i >= 10 {
			at = day1
		}
		at = at.Add(-time.Duration(i) * time.Minute)
		rows = append(rows, models.ReminderLedgerEntry{ID: uint(100 - i), ReminderType: "24h", Status: models.LedgerSent, SentAt: &at, UpdatedAt: at})
	}
	rows = append(rows,
		models.ReminderLedgerEntry{ReminderType: "1h", Status: models.LedgerFailed, UpdatedAt: day1},
		models.ReminderLedgerEntry{ReminderType: "1h", Status: models.LedgerPending, UpdatedAt: day1},
	)

	stats, err := services.NewStatsService(rows).Stats(context.Background(), services.StatsFilter{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSent != 25 || stats.TotalFailed != 1 || stats.TotalPending != 1 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if stats.SuccessRate != 96.2 {
		t.Fatalf("expected 96.2%% success rate, got %v", stats.SuccessRate)
	}
	if stats.ByType["24h"].Sent != 25 || stats.ByType["1h"].Failed != 1 || stats.ByType["1h"].Pending != 1 {
		t.Fatalf("unexpected by_type %+v", stats.ByType)
	}
	if len(stats.ByDay) != 2 || stats.ByDay[0].Date != "2026-10-16" || stats.ByDay[0].Sent != 15 || stats.ByDay[0].Failed != 1 || stats.ByDay[1].Sent != 10 {
		t.Fatalf("unexpected by_day %+v", stats.ByDay)
	}
	if len(stats.RecentActivity) != 20 || stats.RecentActivity[0].ID != 100 {
		t.Fatalf("expected the 20 most recent rows, got %d", len(stats.RecentActivity))
	}
}

func TestStatsByDayStaysInsideWindow(t *testing.T) {
	from := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	sentEarlier := from.Add(-48 * time.Hour)
	rows := staticLedger{
		// sent before the window, then touched again inside it by a failed resend
		{ReminderType: "1h", Status: models.LedgerFailed, SentAt: &sentEarlier, UpdatedAt: from.Add(time.Hour)},
		{ReminderType: "1h", Status: models.LedgerSent, SentAt: &sentEarlier, UpdatedAt: sentEarlier},
	}

	stats, err := services.NewStatsService(rows).Stats(context.Background(), services.StatsFilter{From: &from})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSent != 0 || stats.TotalFailed != 1 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if len(stats.ByDay) != 1 || stats.ByDay[0].Date != "2026-10-17" {
		t.Fatalf("days outside the window must not appear, got %+v", stats.ByDay)
	}
}

func TestStatsEmpty(t *testing.T) {
	stats, err := services.NewStatsService(staticLedger{}).Stats(context.Background(), services.StatsFilter{ReminderType: "1h"})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SuccessRate != 0 || len(stats.ByDay) != 0 || len(stats.RecentActivity) != 0 {
		t.Fatalf("unexpected stats for empty ledger %+v", stats)
	}
}
