package store

import (
	"context"

	"sessionreminders/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetConfig returns the configuration for reminderType or ErrNotFound
func (s *GormStore) GetConfig(ctx context.Context, reminderType string) (*models.ReminderConfiguration, error) {
	var cfg models.ReminderConfiguration
	if err := s.db.WithContext(ctx).Where("reminder_type = ?", reminderType).First(&cfg).Error; err != nil {
		return nil, notFound(err, ErrConfigNotFound, reminderType)
	}
	return &cfg, nil
}

func (s *GormStore) ListConfigs(ctx context.Context) ([]models.ReminderConfiguration, error) {
	var cfgs []models.ReminderConfiguration
	err := s.db.WithContext(ctx).Order("sort_order ASC, reminder_type ASC").Find(&cfgs).Error
	return cfgs, err
}

func (s *GormStore) ListEnabledConfigs(ctx context.Context) ([]models.ReminderConfiguration, error) {
	var cfgs []models.ReminderConfiguration
	err := s.db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, reminder_type ASC").
		Find(&cfgs).Error
	return cfgs, err
}

// UpdateConfig applies the non-nil fields of patch
func (s *GormStore) UpdateConfig(ctx context.Context, reminderType string, patch models.UpdateReminderConfigRequest) (*models.ReminderConfiguration, error) {
	updates := map[string]any{}
	if patch.MinutesBefore != nil {
		updates["minutes_before"] = *patch.MinutesBefore
	}
	if patch.DisplayName != nil {
		updates["display_name"] = *patch.DisplayName
	}
	if patch.SubjectTemplate != nil {
		updates["subject_template"] = *patch.SubjectTemplate
	}
	if patch.BodyTemplate != nil {
		updates["body_template"] = *patch.BodyTemplate
	}
	if patch.IsEnabled != nil {
		updates["is_enabled"] = *patch.IsEnabled
	}
	if patch.SortOrder != nil {
		updates["sort_order"] = *patch.SortOrder
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg models.ReminderConfiguration
		if err := tx.Where("reminder_type = ?", reminderType).First(&cfg).Error; err != nil {
			return notFound(err, ErrConfigNotFound, reminderType)
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&cfg).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetConfig(ctx, reminderType)
}

// UpsertConfigs writes cfgs keyed on reminder type. With overwrite false,
// existing rows are left untouched.
func (s *GormStore) UpsertConfigs(ctx context.Context, cfgs []models.ReminderConfiguration, overwrite bool) error {
	if len(cfgs) == 0 {
		return nil
	}
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "reminder_type"}},
		DoNothing: !overwrite,
	}
	if overwrite {
		onConflict.DoUpdates = clause.AssignmentColumns([]string{
			"minutes_before", "display_name", "subject_template", "body_template",
			"is_enabled", "sort_order", "updated_at",
		})
	}
	return s.db.WithContext(ctx).Clauses(onConflict).Create(&cfgs).Error
}
