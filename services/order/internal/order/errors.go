package order

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrVersionConflict   = errors.New("order was modified concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNothingToPrint    = errors.New("nothing to print")
	ErrForbidden         = errors.New("forbidden")
	ErrPrintUnavailable  = errors.New("print renderer not configured")
)

// ValidationError lists every problem found in a request. Nothing is
// persisted when it is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func newValidationError(problems ...string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// TransientChannelError wraps event bus failures. They are logged and never
// reach the caller of a business operation.
type TransientChannelError struct {
	Channel string
	Err     error
}

func (e *TransientChannelError) Error() string {
	return "channel " + e.Channel + ": " + e.Err.Error()
}

func (e *TransientChannelError) Unwrap() error {
	return e.Err
}
