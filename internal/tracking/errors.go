package tracking

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced event does not exist.
var ErrNotFound = errors.New("event not found")

// ValidationError reports bad caller input. Message is safe to return to
// the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: field + " is required"}
}

// StorageError wraps a backend failure. Its cause is kept for logs and
// errors.Is but is never shown to callers.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
