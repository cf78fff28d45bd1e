// Package memory provides an in-memory AccountRepository used by tests and
// local development. UpdateAtomic serializes on a mutex and works on copies,
// mirroring the row-lock semantics of the PostgreSQL implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/healthlinkhq/healthlink-auth/internal/domain"
	apperrors "github.com/healthlinkhq/healthlink-auth/pkg/errors"
)

// Repository is an in-memory account store.
type Repository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

// NewRepository creates an empty in-memory account repository.
func NewRepository() *Repository {
	return &Repository{accounts: make(map[string]*domain.Account)}
}

func clone(a *domain.Account) *domain.Account {
	c := *a
	if a.OTP != nil {
		otp := *a.OTP
		c.OTP = &otp
	}
	if a.Reset != nil {
		reset := *a.Reset
		c.Reset = &reset
	}
	if a.LockUntil != nil {
		t := *a.LockUntil
		c.LockUntil = &t
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	if a.LastLogoutAt != nil {
		t := *a.LastLogoutAt
		c.LastLogoutAt = &t
	}
	if a.VerifiedAt != nil {
		t := *a.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}

// Create inserts a new account, enforcing email uniqueness.
func (r *Repository) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == a.Email {
			return apperrors.AlreadyExists("account", "email", a.Email)
		}
	}
	r.accounts[a.ID] = clone(a)
	return nil
}

// GetByID retrieves an account by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(a), nil
}

// GetByEmail retrieves an account by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return clone(a), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// GetByExternalIdentity retrieves an account by federated identity.
func (r *Repository) GetByExternalIdentity(ctx context.Context, provider, subject string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ExternalProvider == provider && a.ExternalSubject == subject {
			return clone(a), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// GetByResetTokenHash retrieves the account holding the reset token digest.
func (r *Repository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Reset != nil && a.Reset.TokenHash == tokenHash {
			return clone(a), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// UpdateAtomic applies fn to a copy of the stored account under the lock and
// commits the result only when fn succeeds.
func (r *Repository) UpdateAtomic(ctx context.Context, id string, fn func(a *domain.Account) error) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	working := clone(stored)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	r.accounts[id] = clone(working)
	return working, nil
}
