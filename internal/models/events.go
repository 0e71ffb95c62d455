package models

import "time"

// Event types
const (
	EventTypeEnrollmentCompleted = "ENROLLMENT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrollmentCompletedEvent is published after a verified payment produced an
// enrollment. It carries everything the confirmation email needs so the
// consumer never reads the catalog.
type EnrollmentCompletedEvent struct {
	BaseEvent
	EnrollmentID   string    `json:"enrollment_id"`
	EnrollmentCode string    `json:"enrollment_code"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	UserEmail      string    `json:"user_email"`
	CourseID       string    `json:"course_id"`
	CourseTitle    string    `json:"course_title"`
	CourseDuration string    `json:"course_duration"`
	OrderID        string    `json:"order_id"`
	PaymentID      string    `json:"payment_id"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	EnrolledAt     time.Time `json:"enrolled_at"`
}
