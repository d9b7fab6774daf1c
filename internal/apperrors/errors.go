// Package apperrors defines the error taxonomy shared by the catalog,
// resolver and lifecycle services. Callers classify errors with errors.Is
// against the sentinels; the typed errors carry the detail.
package apperrors

import (
	"errors"
	"fmt"
)

// Base error types
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// NotFoundError reports that an id or slug did not resolve.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// Is implements errors.Is interface
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports input rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is implements errors.Is interface
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConflictError reports a state precondition that does not hold, such as
// a duplicate slug or a trial that was already used.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// Is implements errors.Is interface
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFound builds a NotFoundError.
func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Conflict builds a ConflictError.
func Conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether err is a validation error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
