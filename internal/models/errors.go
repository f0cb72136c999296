package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the self-order core. Every user-facing failure wraps one
// of these sentinels so the HTTP layer can map it to a stable machine code.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrAmountMismatch    = errors.New("amount mismatch")
	ErrMalformedCallback = errors.New("malformed callback")
)

// ErrSessionExpired is a specialization of ErrInvalidState: the session is
// past its deadline whether or not the sweep has caught up with it yet.
var ErrSessionExpired = fmt.Errorf("%w: session expired", ErrInvalidState)

// ErrorCode returns the stable machine-readable code for a domain error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return "SESSION_EXPIRED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAmountMismatch):
		return "AMOUNT_MISMATCH"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrMalformedCallback):
		return "MALFORMED_CALLBACK"
	default:
		return "INTERNAL"
	}
}
