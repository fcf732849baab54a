package domain

import "errors"

var (
	// ErrMessageAlreadyClaimed is returned when an outbox row is not pending,
	// either because another worker holds it or because it is already settled
	ErrMessageAlreadyClaimed = errors.New("outbox message already claimed or not pending")

	// ErrInvalidPayload is returned when a message can never be delivered as
	// written
	ErrInvalidPayload = errors.New("invalid outbox payload")

	// ErrMaxAttemptsExceeded is returned when a message has used up its
	// delivery attempts
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

	// ErrRetryScheduled is returned when a failed dispatch put the row back
	// to pending; the relay republishes it once relay_after has passed
	ErrRetryScheduled = errors.New("outbox message scheduled for retry")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
