package services

import (
	"context"
	"math"
	"sort"
	"time"

	"sessionreminders/internal/models"
)

const recentActivityLimit = 20

type StatsFilter struct {
	From         *time.Time
	To           *time.Time
	ReminderType string
}

type TypeStats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

type DayStats struct {
	Date   string `json:"date"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

type ReminderStats struct {
	TotalSent      int                          `json:"total_sent"`
	TotalFailed    int                          `json:"total_failed"`
	TotalPending   int                          `json:"total_pending"`
	SuccessRate    float64                      `json:"success_rate"`
	ByType         map[string]*TypeStats        `json:"by_type"`
	ByDay          []DayStats                   `json:"by_day"`
	RecentActivity []models.ReminderLedgerEntry `json:"recent_activity"`
}

type StatsService struct {
	ledger LedgerReader
}

func NewStatsService(ledger LedgerReader) *StatsService {
	return &StatsService{ledger: ledger}
}

// Stats aggregates ledger rows last updated inside the filter window; days
// are bucketed by the same update time
func (s *StatsService) Stats(ctx context.Context, filter StatsFilter) (*ReminderStats, error) {
	lf := models.LedgerFilter{From: filter.From, To: filter.To, ReminderType: filter.ReminderType}
	counts, err := s.ledger.CountLedger(ctx, lf)
	if err != nil {
		return nil, err
	}
	recent, err := s.ledger.ListLedger(ctx, lf, recentActivityLimit)
	if err != nil {
		return nil, err
	}

	stats := &ReminderStats{
		ByType:         map[string]*TypeStats{},
		ByDay:          []DayStats{},
		RecentActivity: []models.ReminderLedgerEntry{},
	}
	days := map[string]*DayStats{}

	for _, c := range counts {
		n := int(c.Count)
		byType, ok := stats.ByType[c.ReminderType]
		if !ok {
			byType = &TypeStats{}
			stats.ByType[c.ReminderType] = byType
		}

		var day *DayStats
		if c.Status == models.LedgerSent || c.Status == models.LedgerFailed {
			if day, ok = days[c.Day]; !ok {
				day = &DayStats{Date: c.Day}
				days[c.Day] = day
			}
		}

		switch c.Status {
		case models.LedgerSent:
			stats.TotalSent += n
			byType.Sent += n
			day.Sent += n
		case models.LedgerFailed:
			stats.TotalFailed += n
			byType.Failed += n
			day.Failed += n
		default:
			stats.TotalPending += n
			byType.Pending += n
		}
	}

	for _, d := range days {
		stats.ByDay = append(stats.ByDay, *d)
	}
	sort.Slice(stats.ByDay, func(i, j int) bool { return stats.ByDay[i].Date < stats.ByDay[j].Date })

	if done := stats.TotalSent + stats.TotalFailed; done > 0 {
		rate := float64(stats.TotalSent) / float64(done) * 100
		stats.SuccessRate = math.Round(rate*10) / 10
	}

	stats.RecentActivity = append(stats.RecentActivity, recent...)
	return stats, nil
}
