// Package errors provides domain-specific error types and sentinel errors
// shared by the installation, dispatch and admin layers.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates the caller provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates a request crossed a namespace boundary
	// or lacked valid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCompilationFailed is returned when an answer script does not compile.
	// The message is shown verbatim to operators.
	ErrCompilationFailed = errors.New("compilation failed")

	// ErrDuplicateProvider indicates a connector provider was registered twice for one type.
	ErrDuplicateProvider = errors.New("duplicate connector provider")

	// ErrRateLimitExceeded indicates a per-user rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnauthorized reports whether err wraps ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsInvalidInput reports whether err wraps ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ConfigurationIntegrityError reports connector ids declared more than once.
// Groups maps each offending connector id to the number of declarations.
type ConfigurationIntegrityError struct {
	Groups map[string]int
}

func (e *ConfigurationIntegrityError) Error() string {
	ids := e.ConnectorIDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%q x%d", id, e.Groups[id]))
	}
	return "duplicate connector ids in declared configurations: " + strings.Join(parts, ", ")
}

// ConnectorIDs returns the duplicated ids in sorted order.
func (e *ConfigurationIntegrityError) ConnectorIDs() []string {
	ids := make([]string, 0, len(e.Groups))
	for id := range e.Groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
