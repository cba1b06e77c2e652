package store

import (
	"context"
	"time"

	"sessionreminders/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ledgerKeyColumns = []clause.Column{{Name: "session_id"}, {Name: "user_id"}, {Name: "reminder_type"}}

func ledgerKeyWhere(db *gorm.DB, key models.LedgerKey) *gorm.DB {
	return db.Where("session_id = ? AND user_id = ? AND reminder_type = ?", key.SessionID, key.UserID, key.ReminderType)
}

// FindLedgerEntries returns the ledger rows of the given users for one
// (session, reminder type), keyed by user id
func (s *GormStore) FindLedgerEntries(ctx context.Context, sessionID, reminderType string, userIDs []string) (map[string]models.ReminderLedgerEntry, error) {
	out := make(map[string]models.ReminderLedgerEntry, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var entries []models.ReminderLedgerEntry
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND reminder_type = ? AND user_id IN ?", sessionID, reminderType, userIDs).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.UserID] = e
	}
	return out, nil
}

// BeginAttempt claims the tuple for one delivery attempt, creating the row
// on first attempt. A row already sent or failed for good is left alone and
// the claim reports false. With resendSince set only rows closed at or after
// that instant block the claim.
func (s *GormStore) BeginAttempt(ctx context.Context, key models.LedgerKey, resendSince *time.Time) (bool, error) {
	now := time.Now().UTC()
	entry := models.ReminderLedgerEntry{
		SessionID:    key.SessionID,
		UserID:       key.UserID,
		ReminderType: key.ReminderType,
		Status:       models.LedgerPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	guard := clause.Expr{
		SQL:  "reminder_ledger.status <> ? AND reminder_ledger.permanent = ?",
		Vars: []any{models.LedgerSent, false},
	}
	if resendSince != nil {
		since := resendSince.UTC()
		guard = clause.Expr{
			SQL: "NOT (reminder_ledger.status = ? AND reminder_ledger.sent_at >= ?)" +
				" AND NOT (reminder_ledger.permanent = ? AND reminder_ledger.updated_at >= ?)",
			Vars: []any{models.LedgerSent, since, true, since},
		}
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: ledgerKeyColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"status":     models.LedgerPending,
			"permanent":  false,
			"updated_at": now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{guard}},
	}).Create(&entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkSent records a successful delivery
func (s *GormStore) MarkSent(ctx context.Context, key models.LedgerKey, providerMessageID string, sentAt time.Time) error {
	now := time.Now().UTC()
	sentAt = sentAt.UTC()

	var msgID *string
	if providerMessageID != "" {
		msgID = &providerMessageID
	}
	entry := models.ReminderLedgerEntry{
		SessionID:         key.SessionID,
		UserID:            key.UserID,
		ReminderType:      key.ReminderType,
		Status:            models.LedgerSent,
		ProviderMessageID: msgID,
		SentAt:            &sentAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: ledgerKeyColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"status":              models.LedgerSent,
			"provider_message_id": msgID,
			"sent_at":             sentAt,
			"last_error":          nil,
			"permanent":           false,
			"updated_at":          now,
		}),
	}).Create(&entry).Error
}

// MarkFailed records a failed attempt. countRetry increments retry_count; the
// row becomes permanent when countRetry is false or the count reaches maxRetries.
// A row another run already marked sent stays sent and is returned as is.
func (s *GormStore) MarkFailed(ctx context.Context, key models.LedgerKey, errMsg string, countRetry bool, maxRetries int) (*models.ReminderLedgerEntry, error) {
	now := time.Now().UTC()
	var out models.ReminderLedgerEntry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		initial := 0
		updates := map[string]any{
			"status":     models.LedgerFailed,
			"last_error": errMsg,
			"updated_at": now,
		}
		if countRetry {
			initial = 1
			updates["retry_count"] = gorm.Expr("reminder_ledger.retry_count + 1")
		}

		entry := models.ReminderLedgerEntry{
			SessionID:    key.SessionID,
			UserID:       key.UserID,
			ReminderType: key.ReminderType,
			Status:       models.LedgerFailed,
			RetryCount:   initial,
			LastError:    &errMsg,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   ledgerKeyColumns,
			DoUpdates: clause.Assignments(updates),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "reminder_ledger.status <> ?", Vars: []any{models.LedgerSent}},
			}},
		}).Create(&entry).Error; err != nil {
			return err
		}

		if err := ledgerKeyWhere(tx, key).First(&out).Error; err != nil {
			return err
		}
		if out.Status == models.LedgerSent {
			return nil
		}

		permanent := !countRetry || out.RetryCount >= maxRetries
		if permanent != out.Permanent {
			if err := tx.Model(&models.ReminderLedgerEntry{}).
				Where("id = ?", out.ID).
				Update("permanent", permanent).Error; err != nil {
				return err
			}
			out.Permanent = permanent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func applyLedgerFilter(q *gorm.DB, filter models.LedgerFilter) *gorm.DB {
	if filter.From != nil {
		q = q.Where("updated_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("updated_at <= ?", filter.To.UTC())
	}
	if filter.ReminderType != "" {
		q = q.Where("reminder_type = ?", filter.ReminderType)
	}
	return q
}

// ListLedger returns ledger rows matching filter, most recently updated first.
// limit <= 0 means no limit.
func (s *GormStore) ListLedger(ctx context.Context, filter models.LedgerFilter, limit int) ([]models.ReminderLedgerEntry, error) {
	q := applyLedgerFilter(s.db.WithContext(ctx).Model(&models.ReminderLedgerEntry{}), filter)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []models.ReminderLedgerEntry
	err := q.Order("updated_at DESC, id DESC").Find(&entries).Error
	return entries, err
}

// CountLedger counts the rows matching filter per reminder type, status and
// day of last update
func (s *GormStore) CountLedger(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerCount, error) {
	var counts []models.LedgerCount
	err := applyLedgerFilter(s.db.WithContext(ctx).Model(&models.ReminderLedgerEntry{}), filter).
		Select("reminder_type, status, CAST(DATE(updated_at) AS TEXT) AS day, COUNT(*) AS count").
		Group("reminder_type, status, day").
		Order("day ASC, reminder_type ASC").
		Scan(&counts).Error
	return counts, err
}
