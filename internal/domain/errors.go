package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrMissingPrerequisite  = errors.New("missing prerequisite")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrProviderRejected     = errors.New("provider rejected request")
	ErrIdempotencyViolation = errors.New("idempotency violation")
	ErrInconsistentState    = errors.New("inconsistent state")
	ErrNotFound             = errors.New("not found")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrDuplicate            = errors.New("duplicate record")
)

// ValidationError reports bad input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransitionError names the rejected edge of the load state machine.
type TransitionError struct {
	From LoadStatus
	To   LoadStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move load from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// InconsistentState wraps ErrInconsistentState with a description of what
// disagrees. These are alerted and never auto-corrected.
func InconsistentState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistentState, fmt.Sprintf(format, args...))
}
