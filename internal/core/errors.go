package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the ledger, the stores and the HTTP layer.
// Concrete errors wrap one of these so callers can use errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrConflict           = errors.New("conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrInvalidAmount is returned for zero or negative amounts.
var ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrValidation)

// NotFound builds an ErrNotFound for the given record kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// Conflict builds an ErrConflict for the given record kind and id.
func Conflict(kind, id string) error {
	return fmt.Errorf("%w: %s %q changed since load", ErrConflict, kind, id)
}

// Unavailable wraps a collaborator failure as ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// IsRetryable reports whether err may succeed when retried with fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Kind returns a short machine name for the taxonomy member err belongs to.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
