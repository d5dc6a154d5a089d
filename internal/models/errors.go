package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigIncomplete marks a platform whose credentials are missing.
	ErrConfigIncomplete = errors.New("platform configuration incomplete")
	// ErrNotFound marks a missing entity; callers pick their own fallback.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks bad input rejected before any external call.
	ErrValidation = errors.New("validation failed")
)

// UpstreamError is returned when a platform API fails or returns a payload
// that cannot be decoded.
type UpstreamError struct {
	Platform   Platform
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Platform, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Validationf wraps ErrValidation with a message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
