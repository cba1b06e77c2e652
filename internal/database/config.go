package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"sessionreminders/internal/models"
	"sessionreminders/internal/utils"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Job-queue polling runs every few seconds; keep it out of the SQL log
var pollingQueries = []string{
	`FROM "scheduled_job" WHERE status =`,
	`UPDATE "scheduled_job" SET "locked_at"=NULL`,
}

// Connect opens the Postgres connection and configures the pool
func Connect(dsn string, release bool) (*gorm.DB, error) {
	level := logger.Info
	if release {
		level = logger.Warn
	}

	baseLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags|log.Lshortfile),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  !release,
		},
	)

	gormConfig := &gorm.Config{
		Logger: utils.NewCustomGormLogger(baseLogger, pollingQueries...),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	maxRetries := 5
	retryDelay := time.Second * 5

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		log.Printf("Database connection attempt %d failed: %v", i+1, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Database connection established")
	return db, nil
}

// Migrate creates or updates every table the reminder pipeline reads or writes
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Session{},
		&models.Profile{},
		&models.Enrollment{},
		&models.ReminderConfiguration{},
		&models.ReminderLedgerEntry{},
		&models.ScheduledJob{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
