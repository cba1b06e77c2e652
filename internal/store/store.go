package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrConfigNotFound  = fmt.Errorf("reminder configuration %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
)

// GormStore is the data store behind the reminder pipeline: reminder
// configurations, sessions and enrollments (read-only) and the reminder ledger
type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for migrations and health checks
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks the store is reachable
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// notFound maps gorm's missing-row error onto sentinel, which wraps ErrNotFound
func notFound(err error, sentinel error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, sentinel)
	}
	return err
}
