package repository

import (
	"context"

	"github.com/healthlinkhq/healthlink-auth/internal/domain"
)

// AccountRepository defines the interface for account persistence operations.
type AccountRepository interface {
	// Create inserts a new account into the store.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByEmail retrieves an account by its email address.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// GetByExternalIdentity retrieves an account by federated provider and
	// provider-scoped subject identifier.
	GetByExternalIdentity(ctx context.Context, provider, subject string) (*domain.Account, error)

	// GetByResetTokenHash retrieves the account holding the given password
	// reset token digest, if the challenge exists and is unconsumed.
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error)

	// UpdateAtomic loads the account by id under a row lock, applies fn to
	// the loaded state, and persists the result in the same transaction.
	// Concurrent updates to the same account serialize on the row lock, so
	// fn always sees the latest committed state.
	UpdateAtomic(ctx context.Context, id string, fn func(account *domain.Account) error) (*domain.Account, error)
}
