// Package apperr defines the error taxonomy shared by every quire component.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRefused       = errors.New("refused")
	ErrValidation    = errors.New("validation failed")
	ErrUpstream      = errors.New("upstream failure")

	// ErrIndexInconsistency marks a secondary index write that failed after
	// the document store accepted the change. It is never fatal.
	ErrIndexInconsistency = errors.New("index inconsistency")
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Upstream wraps err as a retryable upstream failure.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// IsRetryable reports whether err came from an upstream call that may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstream)
}
