package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{"ErrNotFound is recognized", ErrNotFound, IsNotFound, true},
		{"wrapped ErrNotFound is recognized", fmt.Errorf("provider %q: %w", "x", ErrNotFound), IsNotFound, true},
		{"different error is not ErrNotFound", ErrUnauthorized, IsNotFound, false},
		{"ErrUnauthorized is recognized", ErrUnauthorized, IsUnauthorized, true},
		{"validation error is invalid input", NewValidationError("text", "required"), IsInvalidInput, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.checkFn(tt.err))
		})
	}
}

func TestCompilationFailedMessage(t *testing.T) {
	assert.Equal(t, "compilation failed", ErrCompilationFailed.Error())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("email", "invalid format")

	assert.Equal(t, "email", err.Field)
	assert.Equal(t, "validation failed on email: invalid format", err.Error())
}

func TestConfigurationIntegrityError(t *testing.T) {
	err := &ConfigurationIntegrityError{Groups: map[string]int{"c2": 3, "c1": 2}}

	assert.Equal(t, []string{"c1", "c2"}, err.ConnectorIDs())
	assert.Contains(t, err.Error(), `"c1" x2`)
	assert.Contains(t, err.Error(), `"c2" x3`)

	var target *ConfigurationIntegrityError
	assert.True(t, errors.As(fmt.Errorf("install: %w", err), &target))
}
