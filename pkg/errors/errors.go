package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrLocked        = errors.New("account locked")
	ErrInternal      = errors.New("internal error")
)

// AppError represents a structured application error with HTTP status mapping.
// Details carries caller-actionable metadata (remaining lock time, resend
// availability) that the transport layer includes in the error body.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"-"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Internal creates a 500 error. The wrapped error is logged server-side and
// never exposed to the caller.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// InvalidCredentials creates the generic 401 returned for both unknown
// accounts and wrong passwords, so the response leaks no account existence.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// AccountLocked creates a 423 error carrying the remaining lock time in
// minutes so the caller can retry without polling.
func AccountLocked(retryAfterMinutes int) *AppError {
	return &AppError{
		Code:    "ACCOUNT_LOCKED",
		Message: fmt.Sprintf("account is temporarily locked, try again in %d minutes", retryAfterMinutes),
		Details: map[string]any{"retry_after_minutes": retryAfterMinutes},
		Status:  http.StatusLocked,
		Err:     ErrLocked,
	}
}

// NotVerified creates a 403 error for login attempts on unverified accounts.
func NotVerified() *AppError {
	return &AppError{
		Code:    "NOT_VERIFIED",
		Message: "please verify your email address before logging in",
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// AlreadyVerified creates a 400 error for repeated verification attempts.
func AlreadyVerified() *AppError {
	return &AppError{
		Code:    "ALREADY_VERIFIED",
		Message: "account is already verified",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// NoChallenge creates a 400 error when no verification code is on file.
func NoChallenge() *AppError {
	return &AppError{
		Code:    "NO_CHALLENGE",
		Message: "no verification code found, please request a new one",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// OTPExpired creates a 400 error for expired verification codes.
func OTPExpired() *AppError {
	return &AppError{
		Code:    "OTP_EXPIRED",
		Message: "verification code has expired, please request a new one",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// OTPMismatch creates a 400 error for wrong verification codes. The stored
// challenge survives, so the caller may retry until expiry.
func OTPMismatch() *AppError {
	return &AppError{
		Code:    "OTP_MISMATCH",
		Message: "invalid verification code",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// TokenInvalid creates a 401 error for tokens failing signature or structural checks.
func TokenInvalid() *AppError {
	return &AppError{
		Code:    "TOKEN_INVALID",
		Message: "invalid token",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// TokenExpired creates a 401 error for well-formed but expired tokens.
func TokenExpired() *AppError {
	return &AppError{
		Code:    "TOKEN_EXPIRED",
		Message: "token has expired",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// TokenRevoked creates a 401 error for refresh tokens whose stored hash no
// longer matches (logout, password reset, or a superseded stolen token).
func TokenRevoked() *AppError {
	return &AppError{
		Code:    "TOKEN_REVOKED",
		Message: "token has been revoked",
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// ResetInvalid creates a 400 error for unknown or expired reset tokens.
// Unknown and expired are deliberately indistinguishable.
func ResetInvalid() *AppError {
	return &AppError{
		Code:    "RESET_INVALID",
		Message: "invalid or expired reset token",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// FederationFailed creates a 401 error for external identity provider failures.
func FederationFailed(err error) *AppError {
	return &AppError{
		Code:    "FEDERATION_FAILED",
		Message: "external identity authentication failed",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

// RateLimited creates a 429 error with the retry window in seconds.
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: "too many requests, please slow down",
		Details: map[string]any{"retry_after_seconds": retryAfterSeconds},
		Status:  http.StatusTooManyRequests,
		Err:     ErrForbidden,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrLocked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}
