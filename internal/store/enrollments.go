package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"enrollment-service/internal/models"
)

// HasCompletedEnrollment reports whether the user already paid for the course
func (s *Store) HasCompletedEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 AND payment_status = $3)",
		userID, courseID, models.PaymentStatusCompleted)
	return exists, err
}

// CreateEnrollment writes the enrollment and bumps the course enrollment
// count in one transaction. A second completed enrollment for the same
// (user, course) or the same gateway order fails with ErrDuplicateEnrollment.
func (s *Store) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO enrollments (id, enrollment_code, user_id, course_id, payment_status,
			payment_method, transaction_id, order_id, amount, currency, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		e.ID, e.EnrollmentCode, e.UserID, e.CourseID, e.PaymentStatus,
		e.PaymentMethod, e.TransactionID, e.OrderID, e.Amount, e.Currency, e.EnrolledAt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == constraintEnrollmentCompleted || constraint == constraintEnrollmentOrder {
			return ErrDuplicateEnrollment
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}

	if e.PaymentStatus == models.PaymentStatusCompleted {
		_, err = tx.ExecContext(ctx,
			"UPDATE courses SET enrollment_count = enrollment_count + 1, updated_at = NOW() WHERE id = $1",
			e.CourseID)
		if err != nil {
			return fmt.Errorf("failed to update enrollment count: %w", err)
		}
	}

	return tx.Commit()
}

// GetEnrollmentByID retrieves an enrollment with its course summary
func (s *Store) GetEnrollmentByID(ctx context.Context, id string) (*models.EnrollmentWithCourse, error) {
	var e models.EnrollmentWithCourse
	err := s.db.GetContext(ctx, &e, enrollmentWithCourseSelect+" WHERE e.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("enrollment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEnrollmentsByUser retrieves a user's enrollments, newest first
func (s *Store) ListEnrollmentsByUser(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error) {
	enrollments := []models.EnrollmentWithCourse{}
	err := s.db.SelectContext(ctx, &enrollments,
		enrollmentWithCourseSelect+" WHERE e.user_id = $1 ORDER BY e.created_at DESC", userID)
	return enrollments, err
}

const enrollmentWithCourseSelect = `
	SELECT e.*, c.title AS course_title, c.slug AS course_slug, c.duration_display AS course_duration
	FROM enrollments e
	JOIN courses c ON c.id = e.course_id`
