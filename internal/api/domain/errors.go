package domain

import (
	"errors"
	"fmt"
)

var (
	// Validation errors surface to the caller as 400 and change no state.
	ErrMissingFields         = errors.New("missing required fields")
	ErrInvalidClassification = errors.New("invalid job classification")
	ErrJobPostNotFound       = errors.New("job post not found")
	ErrJobPostAlreadyPosted  = errors.New("job post is already posted")
	ErrClientNotFound        = errors.New("client not found")
	ErrTransactionNotFound   = errors.New("payment transaction not found")
	ErrTransactionExists     = errors.New("payment transaction already recorded for intent")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMissingSignature      = errors.New("missing webhook signature")
	ErrMalformedEvent        = errors.New("malformed webhook event")

	// ErrInvalidTransition is returned by the transition functions for moves
	// the state graph does not contain.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoTransition means the row is already in the target state.
	ErrNoTransition = errors.New("already in target state")

	// ErrStaleState means a conditional update matched no row because the
	// state changed between read and write.
	ErrStaleState = errors.New("state changed concurrently")
)

// ProcessorError wraps an opaque failure from the payment processor.
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("payment processor %s: %v", e.Op, e.Err)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a data-store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err unless it is nil or already a domain
// sentinel the caller needs to match on.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrJobPostNotFound, ErrJobPostAlreadyPosted, ErrClientNotFound, ErrTransactionNotFound, ErrStaleState} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err belongs to the validation/authorization
// class that maps to a 400 response.
func IsValidation(err error) bool {
	for _, sentinel := range []error{ErrMissingFields, ErrInvalidClassification, ErrJobPostNotFound, ErrJobPostAlreadyPosted, ErrClientNotFound} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
