package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccountRepository stores attendee accounts. CreateUser returns
// ErrAlreadyExists for a taken email.
type AccountRepository interface {
	CreateUser(ctx context.Context, account Account) error
	GetUser(ctx context.Context, id string) (Account, error)
	GetUserByEmail(ctx context.Context, email string) (Account, error)
}

// ChallengeRepository stores one pending sign-in challenge per identifier.
type ChallengeRepository interface {
	UpsertChallenge(ctx context.Context, challenge SignInChallenge) error
	GetChallenge(ctx context.Context, identifier string) (SignInChallenge, error)
	DeleteChallenge(ctx context.Context, identifier string) error
	DeleteExpiredChallenges(ctx context.Context, reference time.Time) (int64, error)
}

// LinkSender delivers a sign-in link.
type LinkSender interface {
	SendSignInLink(ctx context.Context, email, link string) error
}

// Provisioner creates the selection document of a new account.
type Provisioner interface {
	EnsureProvisioned(ctx context.Context, principal Principal, initial []string) (SelectionDocument, bool, error)
}

// AuthConfig carries the secrets and lifetimes of the sign-in flow.
type AuthConfig struct {
	// SessionSecret signs session tokens with HS256.
	SessionSecret []byte
	// Issuer is written to and required in session tokens.
	Issuer string
	// BaseURL is the public origin used to build sign-in links.
	BaseURL    string
	SessionTTL time.Duration
	TokenTTL   time.Duration
	Argon2     Argon2idParams
}

const (
	defaultSessionTTL = 14 * 24 * time.Hour
	defaultTokenTTL   = 24 * time.Hour
	defaultIssuer     = "conference-companion"
)

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService runs the email sign-in flow and validates session tokens.
type AuthService struct {
	accounts       AccountRepository
	challenges     ChallengeRepository
	sender         LinkSender
	provisioner    Provisioner
	config         AuthConfig
	idGenerator    func() string
	tokenGenerator func() (string, error)
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(accounts AccountRepository, challenges ChallengeRepository, sender LinkSender, provisioner Provisioner, config AuthConfig, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(accounts, challenges, sender, provisioner, config, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(accounts AccountRepository, challenges ChallengeRepository, sender LinkSender, provisioner Provisioner, config AuthConfig, now func() time.Time, logger *slog.Logger) *AuthService {
	if now == nil {
		now = time.Now
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaultSessionTTL
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = defaultTokenTTL
	}
	if config.Issuer == "" {
		config.Issuer = defaultIssuer
	}
	if config.Argon2 == (Argon2idParams{}) {
		config.Argon2 = DefaultArgon2idParams
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &AuthService{
		accounts:       accounts,
		challenges:     challenges,
		sender:         sender,
		provisioner:    provisioner,
		config:         config,
		idGenerator:    uuid.NewString,
		tokenGenerator: NewSignInToken,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// NormalizeEmail validates address and returns it trimmed and lower-cased.
func NormalizeEmail(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", newValidationError("email", "a valid email address is required")
	}
	return strings.ToLower(trimmed), nil
}

// RequestSignIn stores a fresh challenge for email, replacing any earlier
// one, and sends the sign-in link.
func (s *AuthService) RequestSignIn(ctx context.Context, email string) (err error) {
	if s == nil || s.challenges == nil || s.sender == nil {
		return fmt.Errorf("sign-in flow not configured")
	}

	logger := s.loggerWith(ctx, "RequestSignIn")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-in request failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "sign-in link sent")
	}()

	email, err = NormalizeEmail(email)
	if err != nil {
		return err
	}

	token, err := s.tokenGenerator()
	if err != nil {
		return err
	}
	digest, err := DigestToken(token, s.config.Argon2)
	if err != nil {
		return fmt.Errorf("digest sign-in token: %w", err)
	}

	now := s.now().UTC()
	challenge := SignInChallenge{
		Identifier: email,
		TokenHash:  digest,
		ExpiresAt:  now.Add(s.config.TokenTTL),
		CreatedAt:  now,
	}
	if err = s.challenges.UpsertChallenge(ctx, challenge); err != nil {
		return err
	}

	return s.sender.SendSignInLink(ctx, email, s.signInLink(email, token))
}

func (s *AuthService) signInLink(email, token string) string {
	query := url.Values{}
	query.Set("email", email)
	query.Set("token", token)
	return s.config.BaseURL + "/api/auth/verify?" + query.Encode()
}

// CompleteSignIn consumes the challenge for email and issues a session
// token. A first sign-in creates the account and provisions its selection
// document.
func (s *AuthService) CompleteSignIn(ctx context.Context, email, token string) (result SessionToken, err error) {
	if s == nil || s.challenges == nil || s.accounts == nil {
		err = fmt.Errorf("sign-in flow not configured")
		return
	}

	logger := s.loggerWith(ctx, "CompleteSignIn")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "sign-in failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"principal_id", result.Principal.UserID,
			"new_account", result.NewAccount,
		).InfoContext(ctx, "sign-in completed")
	}()

	email, err = NormalizeEmail(email)
	if err != nil {
		err = ErrInvalidToken
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrInvalidToken
		return
	}

	var challenge SignInChallenge
	challenge, err = s.challenges.GetChallenge(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrInvalidToken
		}
		return
	}

	now := s.now().UTC()
	if !challenge.ExpiresAt.After(now) {
		_ = s.challenges.DeleteChallenge(ctx, email)
		err = ErrInvalidToken
		return
	}
	if err = VerifyToken(challenge.TokenHash, token); err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return
	}
	if err = s.challenges.DeleteChallenge(ctx, email); err != nil && !errors.Is(err, ErrNotFound) {
		return
	}
	err = nil

	var account Account
	account, result.NewAccount, err = s.findOrCreateAccount(ctx, email, now)
	if err != nil {
		return
	}
	principal := Principal{UserID: account.ID, Email: account.Email}

	// The link is already spent, so a provisioning failure must not block the
	// session. The first toggle provisions lazily instead.
	if result.NewAccount && s.provisioner != nil {
		if _, _, provErr := s.provisioner.EnsureProvisioned(ctx, principal, nil); provErr != nil {
			logger.WarnContext(ctx, "selection provisioning deferred",
				"principal_id", principal.UserID,
				"error", provErr,
				"error_kind", ErrorKind(provErr),
			)
		}
	}

	result.Principal = principal
	result.ExpiresAt = now.Add(s.config.SessionTTL)
	result.Token, err = s.issue(principal, now, result.ExpiresAt)
	return
}

func (s *AuthService) findOrCreateAccount(ctx context.Context, email string, now time.Time) (Account, bool, error) {
	account, err := s.accounts.GetUserByEmail(ctx, email)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, false, err
	}

	account = Account{ID: s.idGenerator(), Email: email, CreatedAt: now, UpdatedAt: now}
	err = s.accounts.CreateUser(ctx, account)
	switch {
	case err == nil:
		return account, true, nil
	case errors.Is(err, ErrAlreadyExists):
		existing, readErr := s.accounts.GetUserByEmail(ctx, email)
		return existing, false, readErr
	default:
		return Account{}, false, err
	}
}

func (s *AuthService) issue(principal Principal, issuedAt, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		Email: principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.SessionSecret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ValidateSession verifies a session token and returns its principal. Any
// invalid, expired or orphaned token yields ErrUnauthorized.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrUnauthorized
		return
	}

	claims := &sessionClaims{}
	_, parseErr := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.config.SessionSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if parseErr != nil || claims.Subject == "" {
		s.loggerWith(ctx, "ValidateSession").DebugContext(ctx, "session token rejected", "error", parseErr)
		err = ErrUnauthorized
		return
	}

	if s.accounts != nil {
		var account Account
		account, err = s.accounts.GetUser(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				err = ErrUnauthorized
			}
			return
		}
		principal = Principal{UserID: account.ID, Email: account.Email}
		return
	}

	principal = Principal{UserID: claims.Subject, Email: claims.Email}
	return
}

// SessionTTL reports the lifetime of issued session tokens.
func (s *AuthService) SessionTTL() time.Duration {
	return s.config.SessionTTL
}

// PurgeExpiredChallenges removes challenges that can no longer be used.
func (s *AuthService) PurgeExpiredChallenges(ctx context.Context) (int64, error) {
	if s == nil || s.challenges == nil {
		return 0, fmt.Errorf("sign-in flow not configured")
	}
	removed, err := s.challenges.DeleteExpiredChallenges(ctx, s.now().UTC())
	logger := s.loggerWith(ctx, "PurgeExpiredChallenges")
	if err != nil {
		logger.ErrorContext(ctx, "failed to purge expired challenges", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	logger.InfoContext(ctx, "expired challenges purged", "removed", removed)
	return removed, nil
}
