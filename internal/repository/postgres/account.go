package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/healthlinkhq/healthlink-auth/internal/domain"
	"github.com/healthlinkhq/healthlink-auth/pkg/database"
	apperrors "github.com/healthlinkhq/healthlink-auth/pkg/errors"
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool database.DBTX
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(pool database.DBTX) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, email, name, phone, password_hash, role, is_verified,
		otp_code, otp_expires_at, failed_login_attempts, lock_until,
		refresh_token_hash, reset_token_hash, reset_expires_at,
		external_provider, external_subject,
		last_login_at, last_logout_at, verified_at, created_at, updated_at`

// Create inserts a new account into the database.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := r.pool.Exec(ctx, query, accountArgs(a)...)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("account", "email", a.Email)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1`

	return r.scanAccount(ctx, r.pool, query, id)
}

// GetByEmail retrieves an account by its email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1`

	return r.scanAccount(ctx, r.pool, query, email)
}

// GetByExternalIdentity retrieves an account by federated provider and subject.
func (r *AccountRepository) GetByExternalIdentity(ctx context.Context, provider, subject string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE external_provider = $1 AND external_subject = $2`

	return r.scanAccount(ctx, r.pool, query, provider, subject)
}

// GetByResetTokenHash retrieves the account holding the given reset token digest.
func (r *AccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE reset_token_hash = $1`

	return r.scanAccount(ctx, r.pool, query, tokenHash)
}

// UpdateAtomic loads the account under a row lock, applies fn, and persists
// the result in the same transaction. An error from fn aborts the update and
// is returned unchanged, so callers can surface domain errors from inside fn.
func (r *AccountRepository) UpdateAtomic(ctx context.Context, id string, fn func(account *domain.Account) error) (*domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1
		FOR UPDATE`

	a, err := r.scanAccount(ctx, tx, query, id)
	if err != nil {
		return nil, err
	}

	if err := fn(a); err != nil {
		return nil, err
	}

	a.UpdatedAt = time.Now().UTC()

	update := `
		UPDATE accounts
		SET email = $2, name = $3, phone = $4, password_hash = $5, role = $6, is_verified = $7,
		    otp_code = $8, otp_expires_at = $9, failed_login_attempts = $10, lock_until = $11,
		    refresh_token_hash = $12, reset_token_hash = $13, reset_expires_at = $14,
		    external_provider = $15, external_subject = $16,
		    last_login_at = $17, last_logout_at = $18, verified_at = $19, updated_at = $20
		WHERE id = $1`

	args := accountArgs(a)
	// accountArgs orders columns as in accountColumns; the UPDATE skips
	// created_at, so drop it and move id to position 1.
	updateArgs := append([]any{a.ID}, args[1:19]...)
	updateArgs = append(updateArgs, a.UpdatedAt)

	if _, err := tx.Exec(ctx, update, updateArgs...); err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("account", "email", a.Email)
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit account update: %w", err)
	}

	return a, nil
}

// querier is the minimal read surface shared by DBTX and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanAccount executes a query expected to return a single account row,
// reassembling the nullable challenge columns into their domain structs.
func (r *AccountRepository) scanAccount(ctx context.Context, q querier, query string, args ...any) (*domain.Account, error) {
	var (
		a            domain.Account
		otpCode      *string
		otpExpiresAt *time.Time
		resetHash    *string
		resetExpires *time.Time
	)

	err := q.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.Phone,
		&a.PasswordHash,
		&a.Role,
		&a.IsVerified,
		&otpCode,
		&otpExpiresAt,
		&a.FailedLoginAttempts,
		&a.LockUntil,
		&a.RefreshTokenHash,
		&resetHash,
		&resetExpires,
		&a.ExternalProvider,
		&a.ExternalSubject,
		&a.LastLoginAt,
		&a.LastLogoutAt,
		&a.VerifiedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if otpCode != nil && otpExpiresAt != nil {
		a.OTP = &domain.OTPChallenge{Code: *otpCode, ExpiresAt: *otpExpiresAt}
	}
	if resetHash != nil && resetExpires != nil {
		a.Reset = &domain.ResetChallenge{TokenHash: *resetHash, ExpiresAt: *resetExpires}
	}

	return &a, nil
}

// accountArgs flattens an account into the 21 values matching accountColumns.
func accountArgs(a *domain.Account) []any {
	var (
		otpCode      *string
		otpExpiresAt *time.Time
		resetHash    *string
		resetExpires *time.Time
	)
	if a.OTP != nil {
		otpCode = &a.OTP.Code
		otpExpiresAt = &a.OTP.ExpiresAt
	}
	if a.Reset != nil {
		resetHash = &a.Reset.TokenHash
		resetExpires = &a.Reset.ExpiresAt
	}

	return []any{
		a.ID,
		a.Email,
		a.Name,
		a.Phone,
		a.PasswordHash,
		a.Role,
		a.IsVerified,
		otpCode,
		otpExpiresAt,
		a.FailedLoginAttempts,
		a.LockUntil,
		a.RefreshTokenHash,
		resetHash,
		resetExpires,
		a.ExternalProvider,
		a.ExternalSubject,
		a.LastLoginAt,
		a.LastLogoutAt,
		a.VerifiedAt,
		a.CreatedAt,
		a.UpdatedAt,
	}
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
