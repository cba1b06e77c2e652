// Package testutil holds fixtures shared by package tests. It must only be
// imported from _test.go files.
package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sessionreminders/internal/database"
	"sessionreminders/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated in-memory SQLite database private to the test
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	db, err := gorm.Open(dsn, &gorm.Config{
		Logger:  logger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection serializes writers; SQLite shared cache would otherwise report table locks
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Clock is a settable clock, safe to read from background goroutines
type Clock struct {
	mu sync.Mutex
	T  time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.T
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.T = c.T.Add(d)
	c.mu.Unlock()
}

// SeedSession creates a session and one active enrollment with profile per user id
func SeedSession(t testing.TB, db *gorm.DB, sessionID string, start time.Time, userIDs ...string) models.Session {
	t.Helper()
	session := models.Session{
		ID:              sessionID,
		Title:           "Session " + sessionID,
		StartTime:       start.UTC(),
		DurationMinutes: 60,
		MeetingURL:      "https://meet.example.com/" + sessionID,
		HostName:        "Host",
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i, uid := range userIDs {
		SeedEnrollment(t, db, session, uid, start.Add(-48*time.Hour).Add(time.Duration(i)*time.Minute))
	}
	return session
}

// SeedEnrollment enrolls userID (creating the profile if needed)
func SeedEnrollment(t testing.TB, db *gorm.DB, session models.Session, userID string, enrolledAt time.Time) models.Enrollment {
	t.Helper()
	profile := models.Profile{ID: userID, Email: userID + "@example.com", FullName: "User " + userID}
	if err := db.Where("id = ?", userID).FirstOrCreate(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	enrollment := models.Enrollment{
		ID:               "enr-" + session.ID + "-" + userID,
		SessionID:        session.ID,
		UserID:           userID,
		EnrolledAt:       enrolledAt.UTC(),
		Status:           models.EnrollmentActive,
		UnitsSpent:       1,
		SessionStartTime: session.StartTime,
	}
	if err := db.Create(&enrollment).Error; err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	return enrollment
}

// SeedConfigs creates the 24h and 1h reminder configurations
func SeedConfigs(t testing.TB, db *gorm.DB, enabled24h, enabled1h bool) {
	t.Helper()
	cfgs := []models.ReminderConfiguration{
		{ReminderType: "24h", MinutesBefore: 1440, DisplayName: "24 hours before", SubjectTemplate: "Tomorrow: {session_title}", IsEnabled: enabled24h, SortOrder: 1},
		{ReminderType: "1h", MinutesBefore: 60, DisplayName: "1 hour before", SubjectTemplate: "Starting soon: {session_title}", IsEnabled: enabled1h, SortOrder: 2},
	}
	if err := db.Create(&cfgs).Error; err != nil {
		t.Fatalf("seed configs: %v", err)
	}
}
