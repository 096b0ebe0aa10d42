package slotqueue

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of these.
var (
	ErrValidation             = errors.New("validation error")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrAlreadyStarted         = errors.New("serving session already started")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrForbidden              = errors.New("forbidden")
)

var (
	ErrSlotNotFound  = fmt.Errorf("slot %w", ErrNotFound)
	ErrTokenNotFound = fmt.Errorf("token %w", ErrNotFound)

	ErrSlotBusy        = fmt.Errorf("%w: slot is being modified, retry shortly", ErrConcurrencyConflict)
	ErrVersionMismatch = fmt.Errorf("%w: slot changed since it was read", ErrConcurrencyConflict)

	ErrTokenNotServing = fmt.Errorf("%w: token is not being served", ErrInvalidStateTransition)
	ErrSlotServing     = fmt.Errorf("%w: slot has a token being served", ErrInvalidStateTransition)
	ErrSlotInactive    = fmt.Errorf("%w: slot is not active", ErrInvalidStateTransition)
)

// IsRetryable reports whether the caller may retry the same call unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// Kind returns the error kind err wraps, or nil for errors outside the taxonomy.
func Kind(err error) error {
	for _, k := range []error{
		ErrValidation,
		ErrCapacityExceeded,
		ErrAlreadyStarted,
		ErrInvalidStateTransition,
		ErrNotFound,
		ErrConcurrencyConflict,
		ErrForbidden,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func validationf(format string, args ...any) error {
	return errorf(ErrValidation, format, args...)
}
