package store

import (
	"context"

	"sessionreminders/internal/models"
)

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		return nil, notFound(err, ErrSessionNotFound, sessionID)
	}
	return &session, nil
}

// ListRecipients returns the active enrollments of a session joined with
// profile contact details. A non-nil userIDs restricts the result to those users.
func (s *GormStore) ListRecipients(ctx context.Context, sessionID string, userIDs []string) ([]models.Recipient, error) {
	if userIDs != nil && len(userIDs) == 0 {
		return nil, nil
	}

	q := s.db.WithContext(ctx).
		Table("session_enrollment AS e").
		Select("e.user_id AS user_id, p.email AS email, p.full_name AS name").
		Joins("JOIN profile p ON p.id = e.user_id").
		Where("e.session_id = ? AND e.status = ?", sessionID, models.EnrollmentActive)
	if userIDs != nil {
		q = q.Where("e.user_id IN ?", userIDs)
	}

	var recipients []models.Recipient
	err := q.Order("e.enrolled_at ASC, e.user_id ASC").Scan(&recipients).Error
	return recipients, err
}

func (s *GormStore) CountEnrollments(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("session_id = ? AND status = ?", sessionID, models.EnrollmentActive).
		Count(&count).Error
	return count, err
}

func (s *GormStore) ListEnrollments(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, models.EnrollmentActive).
		Order("enrolled_at ASC").
		Find(&enrollments).Error
	return enrollments, err
}
