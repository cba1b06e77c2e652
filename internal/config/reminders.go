package config

import (
	"fmt"
	"os"

	"sessionreminders/internal/models"

	"gopkg.in/yaml.v3"
)

type reminderFile struct {
	Reminders []models.ReminderConfiguration `yaml:"reminders"`
}

// DefaultReminderConfigurations are seeded when no configuration file is given
func DefaultReminderConfigurations() []models.ReminderConfiguration {
	return []models.ReminderConfiguration{
		{
			ReminderType:    "24h",
			MinutesBefore:   24 * 60,
			DisplayName:     "24 hours before",
			SubjectTemplate: "Tomorrow: {session_title}",
			IsEnabled:       true,
			SortOrder:       1,
		},
		{
			ReminderType:    "1h",
			MinutesBefore:   60,
			DisplayName:     "1 hour before",
			SubjectTemplate: "Starting in 1 hour: {session_title}",
			IsEnabled:       true,
			SortOrder:       2,
		},
	}
}

// LoadReminderConfigurations reads reminder configurations from a YAML file
// with a top-level "reminders" list
func LoadReminderConfigurations(path string) ([]models.ReminderConfiguration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reminder config %s: %w", path, err)
	}
	return ParseReminderConfigurations(raw)
}

func ParseReminderConfigurations(raw []byte) ([]models.ReminderConfiguration, error) {
	var file reminderFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse reminder config: %w", err)
	}

	seen := map[string]bool{}
	for i, r := range file.Reminders {
		switch {
		case r.ReminderType == "":
			return nil, fmt.Errorf("reminder %d: reminder_type is required", i)
		case seen[r.ReminderType]:
			return nil, fmt.Errorf("reminder %s: duplicate reminder_type", r.ReminderType)
		case r.MinutesBefore < 0:
			return nil, fmt.Errorf("reminder %s: minutes_before must not be negative", r.ReminderType)
		case r.SubjectTemplate == "":
			return nil, fmt.Errorf("reminder %s: subject_template is required", r.ReminderType)
		}
		seen[r.ReminderType] = true
		if file.Reminders[i].DisplayName == "" {
			file.Reminders[i].DisplayName = r.ReminderType
		}
	}
	return file.Reminders, nil
}
