package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrParcelNotFound       = fmt.Errorf("parcel %w", ErrNotFound)
	ErrAssignmentNotFound   = fmt.Errorf("courier assignment %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("access forbidden")
	ErrConcurrentUpdate  = errors.New("parcel was modified concurrently")
	ErrAssignmentExists  = errors.New("parcel already has an active courier assignment")
	ErrDuplicateParcel   = errors.New("parcel already exists")
	ErrUserExists        = errors.New("user already exists")
)

// TransitionError names both ends of a rejected status change.
type TransitionError struct {
	From ParcelStatus
	To   ParcelStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a *ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
