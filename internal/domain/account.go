package domain

import (
	"time"
)

// Account represents an identity and credential record. Secret-bearing fields
// are excluded from JSON so no handler can leak them by serializing the
// struct directly.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	IsVerified   bool   `json:"is_verified"`

	// OTP is the live email verification challenge, at most one per account.
	OTP *OTPChallenge `json:"-"`

	// FailedLoginAttempts counts consecutive credential failures; reset to 0
	// on success. LockUntil is set only when the counter reaches the
	// configured threshold.
	FailedLoginAttempts int        `json:"-"`
	LockUntil           *time.Time `json:"-"`

	// RefreshTokenHash is the SHA-256 digest of the currently valid refresh
	// token. Empty means no active session; a mismatched candidate means a
	// revoked or superseded token.
	RefreshTokenHash string `json:"-"`

	// Reset is the live single-use password reset challenge.
	Reset *ResetChallenge `json:"-"`

	// ExternalProvider/ExternalSubject identify a federated identity.
	// A brand-new federated account has no password hash.
	ExternalProvider string `json:"external_provider,omitempty"`
	ExternalSubject  string `json:"-"`

	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastLogoutAt *time.Time `json:"-"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// OTPChallenge is a one-time email verification code. Overwritten, never
// appended, on resend.
type OTPChallenge struct {
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ResetChallenge is a single-use password reset challenge. Only the token
// hash is stored; the plaintext token exists solely in the delivered link.
type ResetChallenge struct {
	TokenHash string
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *ResetChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Locked reports whether the account is inside an active lockout window.
func (a *Account) Locked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// LockRemaining returns the time left in the lockout window, or zero.
func (a *Account) LockRemaining(now time.Time) time.Duration {
	if !a.Locked(now) {
		return 0
	}
	return a.LockUntil.Sub(now)
}

// TokenPair holds an access and refresh token pair, returned in plaintext to
// the caller exactly once. Only the refresh token's hash is persisted.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
