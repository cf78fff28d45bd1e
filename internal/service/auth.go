package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthlinkhq/healthlink-auth/internal/auth"
	"github.com/healthlinkhq/healthlink-auth/internal/domain"
	"github.com/healthlinkhq/healthlink-auth/internal/notify"
	"github.com/healthlinkhq/healthlink-auth/internal/repository"
	apperrors "github.com/healthlinkhq/healthlink-auth/pkg/errors"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 100
	minNameLength     = 2
	maxNameLength     = 100
)

// Config holds the tunable policy knobs of the auth service.
type Config struct {
	// OTPTTL is the lifetime of an email verification code.
	OTPTTL time.Duration

	// ResetTTL is the lifetime of a password reset token.
	ResetTTL time.Duration

	// MaxLoginFailures is the consecutive-failure count that triggers a lock.
	MaxLoginFailures int

	// LockDuration is the length of the lockout window.
	LockDuration time.Duration

	// ResetURLBase is the frontend base URL the reset link is built on.
	ResetURLBase string
}

// DefaultConfig returns the stock lifecycle policy.
func DefaultConfig() Config {
	return Config{
		OTPTTL:           10 * time.Minute,
		ResetTTL:         15 * time.Minute,
		MaxLoginFailures: 5,
		LockDuration:     15 * time.Minute,
		ResetURLBase:     "http://localhost:3000",
	}
}

// AuthService implements the account lifecycle: registration, verification,
// login with lockout, token refresh and revocation, password reset, and
// federated login.
type AuthService struct {
	repo       repository.AccountRepository
	jwtManager *auth.JWTManager
	notifier   notify.Notifier
	cfg        Config
	logger     *slog.Logger

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(
	repo repository.AccountRepository,
	jwtManager *auth.JWTManager,
	notifier notify.Notifier,
	cfg Config,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:       repo,
		jwtManager: jwtManager,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// --- Input types ---

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     string
}

// RegisterResult reports the created account and whether the verification
// email was handed off to the mailer.
type RegisterResult struct {
	Account   *domain.Account
	EmailSent bool
}

// LoginInput holds the parameters for logging in.
type LoginInput struct {
	Email    string
	Password string
}

// ExternalIdentity describes a federated profile asserted by a provider.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// --- Registration & verification ---

// Register creates an unverified account and dispatches a verification code.
// A notification failure does not fail registration; the caller learns of it
// through RegisterResult.EmailSent and the holder can request a resend.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < minNameLength || len(name) > maxNameLength {
		return nil, apperrors.InvalidInput("name must be between 2 and 100 characters")
	}
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = domain.RolePatient
	}
	if !domain.SelfRegisterableRole(role) {
		return nil, apperrors.InvalidInput("invalid role")
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	code, err := auth.NewOTP()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: passwordHash,
		Role:         role,
		IsVerified:   false,
		OTP: &domain.OTPChallenge{
			Code:      code,
			ExpiresAt: now.Add(s.cfg.OTPTTL),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}
	registrationsTotal.Inc()

	emailSent := true
	if err := s.notifier.SendOTP(ctx, account.ID, account.Email, account.Name, code); err != nil {
		emailSent = false
		s.logger.ErrorContext(ctx, "failed to dispatch verification email",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", account.ID),
		slog.String("role", account.Role),
		slog.Bool("email_sent", emailSent),
	)

	return &RegisterResult{Account: account, EmailSent: emailSent}, nil
}

// VerifyOTP consumes the pending verification challenge. An expired code is
// cleared as a side effect so it can never be retried; a mismatched code
// leaves the challenge in place.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*domain.Account, error) {
	found, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, s.mapLookupErr(err, "account", email)
	}

	now := s.now()
	var opErr error
	account, err := s.repo.UpdateAtomic(ctx, found.ID, func(a *domain.Account) error {
		if a.IsVerified {
			return apperrors.AlreadyVerified()
		}
		if a.OTP == nil {
			return apperrors.NoChallenge()
		}
		if a.OTP.Expired(now) {
			// Commit the clear, surface the error.
			a.OTP = nil
			opErr = apperrors.OTPExpired()
			return nil
		}
		if a.OTP.Code != code {
			return apperrors.OTPMismatch()
		}

		a.OTP = nil
		a.IsVerified = true
		a.VerifiedAt = &now
		return nil
	})
	if err != nil {
		otpVerificationsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	if opErr != nil {
		otpVerificationsTotal.WithLabelValues("expired").Inc()
		return nil, opErr
	}

	otpVerificationsTotal.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "account verified",
		slog.String("account_id", account.ID),
	)

	return account, nil
}

// ResendOTP overwrites any pending verification challenge with a fresh code.
// The new challenge is persisted before delivery is attempted, so a delivery
// error still leaves a valid code that a later resend can replace.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	found, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.mapLookupErr(err, "account", email)
	}

	code, err := auth.NewOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	now := s.now()
	account, err := s.repo.UpdateAtomic(ctx, found.ID, func(a *domain.Account) error {
		if a.IsVerified {
			return apperrors.AlreadyVerified()
		}
		a.OTP = &domain.OTPChallenge{
			Code:      code,
			ExpiresAt: now.Add(s.cfg.OTPTTL),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.notifier.SendOTP(ctx, account.ID, account.Email, account.Name, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch verification email",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return apperrors.Internal(fmt.Errorf("dispatch verification email: %w", err))
	}

	s.logger.InfoContext(ctx, "verification code resent",
		slog.String("account_id", account.ID),
	)

	return nil
}

// --- Login & lockout ---

// Login authenticates with email and password. Unknown email and wrong
// password are indistinguishable to the caller. Failed attempts count toward
// a temporary lock; the counter mutation is atomic, so concurrent wrong
// passwords cannot under-count.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.Account, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, nil, apperrors.InvalidCredentials()
	}

	found, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			loginAttemptsTotal.WithLabelValues("failure").Inc()
			return nil, nil, apperrors.InvalidCredentials()
		}
		return nil, nil, err
	}

	now := s.now()
	var (
		opErr  error
		tokens *domain.TokenPair
	)
	account, err := s.repo.UpdateAtomic(ctx, found.ID, func(a *domain.Account) error {
		if a.Locked(now) {
			return apperrors.AccountLocked(lockMinutes(a.LockRemaining(now)))
		}

		if !auth.CheckPassword(a.PasswordHash, input.Password) {
			// Commit the counter increment, surface the generic error.
			a.FailedLoginAttempts++
			if a.FailedLoginAttempts >= s.cfg.MaxLoginFailures {
				until := now.Add(s.cfg.LockDuration)
				a.LockUntil = &until
				lockoutsTotal.Inc()
			}
			opErr = apperrors.InvalidCredentials()
			return nil
		}

		if !a.IsVerified {
			return apperrors.NotVerified()
		}

		pair, err := s.issueTokens(a)
		if err != nil {
			return err
		}
		tokens = pair

		a.FailedLoginAttempts = 0
		a.LockUntil = nil
		a.RefreshTokenHash = auth.HashToken(pair.RefreshToken)
		a.LastLoginAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrLocked) {
			loginAttemptsTotal.WithLabelValues("locked").Inc()
		} else {
			loginAttemptsTotal.WithLabelValues("failure").Inc()
		}
		return nil, nil, err
	}
	if opErr != nil {
		loginAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, nil, opErr
	}

	loginAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("account_id", account.ID),
	)

	return account, tokens, nil
}

// --- Token refresh & revocation ---

// Refresh exchanges a valid refresh token for a new access token. The token
// must carry a valid signature and match the persisted session hash; a token
// superseded by a newer login or cleared by logout is rejected as revoked.
// The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("invalid").Inc()
		if errors.Is(err, auth.ErrTokenExpired) {
			return "", apperrors.TokenExpired()
		}
		return "", apperrors.TokenInvalid()
	}

	account, err := s.repo.GetByID(ctx, claims.AccountID)
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("invalid").Inc()
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.TokenInvalid()
		}
		return "", err
	}

	if account.RefreshTokenHash == "" ||
		!auth.TokenHashEquals(account.RefreshTokenHash, auth.HashToken(refreshToken)) {
		tokenRefreshesTotal.WithLabelValues("revoked").Inc()
		return "", apperrors.TokenRevoked()
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(account.ID, account.Role)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}

	tokenRefreshesTotal.WithLabelValues("success").Inc()
	return accessToken, nil
}

// Logout revokes the account's active session.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	now := s.now()
	_, err := s.repo.UpdateAtomic(ctx, accountID, func(a *domain.Account) error {
		a.RefreshTokenHash = ""
		a.LastLogoutAt = &now
		return nil
	})
	if err != nil {
		return s.mapLookupErr(err, "account", accountID)
	}

	s.logger.InfoContext(ctx, "logged out",
		slog.String("account_id", accountID),
	)
	return nil
}

// --- Password reset ---

// ForgotPassword stores a single-use reset challenge and dispatches the reset
// link. The response is identical whether or not the email is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	found, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		s.logger.InfoContext(ctx, "password reset requested for unknown email")
		return nil
	}

	raw, digest, err := auth.NewResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	account, err := s.repo.UpdateAtomic(ctx, found.ID, func(a *domain.Account) error {
		a.Reset = &domain.ResetChallenge{
			TokenHash: digest,
			ExpiresAt: now.Add(s.cfg.ResetTTL),
		}
		return nil
	})
	if err != nil {
		return err
	}

	resetURL := strings.TrimRight(s.cfg.ResetURLBase, "/") + "/reset-password/" + raw
	if err := s.notifier.SendPasswordReset(ctx, account.ID, account.Email, account.Name, resetURL); err != nil {
		// The challenge stands; the holder can request another link.
		s.logger.ErrorContext(ctx, "failed to dispatch reset email",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("account_id", account.ID),
	)
	return nil
}

// ResetPassword consumes a reset challenge: sets the new password, clears the
// challenge and any failure counters or lock, and revokes the active session
// so stolen refresh tokens die with the old password.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	digest := auth.HashToken(rawToken)
	found, err := s.repo.GetByResetTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ResetInvalid()
		}
		return err
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	var opErr error
	account, err := s.repo.UpdateAtomic(ctx, found.ID, func(a *domain.Account) error {
		if a.Reset == nil || !auth.TokenHashEquals(a.Reset.TokenHash, digest) {
			return apperrors.ResetInvalid()
		}
		if a.Reset.Expired(now) {
			// Commit the clear, surface the error.
			a.Reset = nil
			opErr = apperrors.ResetInvalid()
			return nil
		}

		a.PasswordHash = passwordHash
		a.Reset = nil
		a.FailedLoginAttempts = 0
		a.LockUntil = nil
		a.RefreshTokenHash = ""
		a.LastLogoutAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	passwordResetsTotal.Inc()
	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("account_id", account.ID),
	)
	return nil
}

// --- Federation ---

// LoginWithExternalIdentity signs in a federated identity, provisioning a
// verified account on first contact. An existing account with the same email
// is linked to the identity instead of duplicated.
func (s *AuthService) LoginWithExternalIdentity(ctx context.Context, identity ExternalIdentity) (*domain.Account, *domain.TokenPair, error) {
	if identity.Provider == "" || identity.Subject == "" || identity.Email == "" {
		return nil, nil, apperrors.FederationFailed(errors.New("incomplete identity assertion"))
	}

	email := normalizeEmail(identity.Email)
	now := s.now()

	account, err := s.repo.GetByExternalIdentity(ctx, identity.Provider, identity.Subject)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, err
		}
		account, err = s.provisionExternal(ctx, identity, email, now)
		if err != nil {
			return nil, nil, err
		}
	}

	var tokens *domain.TokenPair
	account, err = s.repo.UpdateAtomic(ctx, account.ID, func(a *domain.Account) error {
		pair, err := s.issueTokens(a)
		if err != nil {
			return err
		}
		tokens = pair

		a.ExternalProvider = identity.Provider
		a.ExternalSubject = identity.Subject
		a.FailedLoginAttempts = 0
		a.LockUntil = nil
		a.RefreshTokenHash = auth.HashToken(pair.RefreshToken)
		a.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	federatedLoginsTotal.Inc()
	s.logger.InfoContext(ctx, "federated login succeeded",
		slog.String("account_id", account.ID),
		slog.String("provider", identity.Provider),
	)

	return account, tokens, nil
}

// provisionExternal finds the account by email for linking, or creates a
// fresh verified account with no password hash.
func (s *AuthService) provisionExternal(ctx context.Context, identity ExternalIdentity, email string, now time.Time) (*domain.Account, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = email
	}

	account := &domain.Account{
		ID:               uuid.New().String(),
		Email:            email,
		Name:             name,
		Role:             domain.RolePatient,
		IsVerified:       true,
		VerifiedAt:       &now,
		ExternalProvider: identity.Provider,
		ExternalSubject:  identity.Subject,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "federated account provisioned",
		slog.String("account_id", account.ID),
		slog.String("provider", identity.Provider),
	)
	return account, nil
}

// --- Lookup ---

// GetAccount returns the account by ID.
func (s *AuthService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupErr(err, "account", id)
	}
	return account, nil
}

// --- Helpers ---

func (s *AuthService) issueTokens(a *domain.Account) (*domain.TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(a.ID, a.Role)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(a.ID, a.Role)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &domain.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *AuthService) mapLookupErr(err error, resource, id string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return apperrors.InvalidInput("password must be between 6 and 100 characters")
	}
	return nil
}

// lockMinutes rounds the remaining lock window up to whole minutes, so the
// holder is never told to retry earlier than the lock allows.
func lockMinutes(remaining time.Duration) int {
	return int(math.Ceil(remaining.Minutes()))
}
