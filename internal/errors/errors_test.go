package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAppError tests AppError construction and formatting
func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewConfigError("missing field birth_age", nil),
			expected: "[CONFIG] missing field birth_age",
		},
		{
			name:     "with cause",
			err:      NewDataError("read household table", errors.New("unexpected EOF")),
			expected: "[DATA] read household table: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

// TestAppErrorUnwrap tests errors.Is/As interoperability
func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStorageError("write analysis table", cause)

	assert.True(t, errors.Is(err, cause))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeStorage, appErr.Type)
}

// TestWithContext tests context accumulation
func TestWithContext(t *testing.T) {
	err := NewEstimationError("iv_baseline", "perfect collinearity", nil)
	err = err.WithContext("n_obs", 1200)

	assert.Equal(t, "iv_baseline", err.Context["spec"])
	assert.Equal(t, 1200, err.Context["n_obs"])
}

// TestIsType tests type detection through wrapped chains
func TestIsType(t *testing.T) {
	inner := NewConfigError("duplicate panel key", nil)
	wrapped := fmt.Errorf("declare panel: %w", inner)

	assert.True(t, IsType(wrapped, ErrTypeConfig))
	assert.False(t, IsType(wrapped, ErrTypeEstimation))
	assert.False(t, IsType(nil, ErrTypeConfig))
}
