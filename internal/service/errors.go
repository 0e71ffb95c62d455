package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for the transport layer
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindVerification
	KindForbidden
	KindUnauthorized
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindVerification:
		return "VERIFICATION_FAILED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindUpstream:
		return "GATEWAY_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is returned by every service method whose failure the caller has to
// tell apart. Message is safe to show to clients; Err is for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrAlreadyEnrolled marks conflicts caused by an existing completed
// enrollment, as opposed to a verification that is still running.
var ErrAlreadyEnrolled = errors.New("already enrolled")

const (
	msgAlreadyEnrolled      = "You are already enrolled in this course"
	msgVerificationRunning  = "Payment verification already in progress"
	msgInvalidSignature     = "Payment verification failed. Invalid signature."
	msgIncompleteVerify     = "Payment verification data is incomplete"
	msgOrderMismatch        = "Payment does not match the order"
	msgCourseOrUserNotFound = "Course or User not found"
)

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func alreadyEnrolled(cause error) *Error {
	if cause == nil {
		return newError(KindConflict, msgAlreadyEnrolled, ErrAlreadyEnrolled)
	}
	return newError(KindConflict, msgAlreadyEnrolled, fmt.Errorf("%w: %w", ErrAlreadyEnrolled, cause))
}

// AsError extracts a *Error from err's chain
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
