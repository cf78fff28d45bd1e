package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := InvalidInput("email is required")
	assert.Equal(t, "INVALID_INPUT: email is required", err.Error())

	wrapped := Internal(errors.New("connection refused"))
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	err := InvalidCredentials()
	assert.ErrorIs(t, err, ErrUnauthorized)

	locked := AccountLocked(15)
	assert.ErrorIs(t, locked, ErrLocked)
}

func TestAccountLocked_Details(t *testing.T) {
	err := AccountLocked(12)
	assert.Equal(t, http.StatusLocked, err.Status)
	assert.Equal(t, 12, err.Details["retry_after_minutes"])
	assert.Contains(t, err.Message, "12 minutes")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"app error carries its own status", NotVerified(), http.StatusForbidden},
		{"wrapped app error", fmt.Errorf("login: %w", AccountLocked(5)), http.StatusLocked},
		{"sentinel not found", ErrNotFound, http.StatusNotFound},
		{"sentinel duplicate", ErrAlreadyExists, http.StatusConflict},
		{"sentinel unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"sentinel locked", ErrLocked, http.StatusLocked},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestTokenErrors_AreUnauthorized(t *testing.T) {
	for _, err := range []*AppError{TokenInvalid(), TokenExpired(), TokenRevoked()} {
		assert.Equal(t, http.StatusUnauthorized, err.Status, err.Code)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
}
