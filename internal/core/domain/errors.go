package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	// ErrMalformedOutput marks an inference response that could not be parsed
	// or failed shape validation; never retried.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrQueueFull is returned when the background pool rejects a submission.
	ErrQueueFull = errors.New("work queue full")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
