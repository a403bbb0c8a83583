package sqlite

import (
	"context"
	"time"

	"github.com/example/conference-companion/internal/persistence"
)

// VerificationTokenRepository implements
// persistence.VerificationTokenRepository using SQLite.
type VerificationTokenRepository struct {
	pool   *ConnectionPool
	retry  *RetryHelper
	mapper *ErrorMapper
}

// NewVerificationTokenRepository creates a token repository on pool.
func NewVerificationTokenRepository(pool *ConnectionPool, retry *RetryHelper) *VerificationTokenRepository {
	return &VerificationTokenRepository{pool: pool, retry: retry, mapper: NewErrorMapper()}
}

// UpsertVerificationToken stores the challenge, replacing any earlier one
// for the same identifier.
func (r *VerificationTokenRepository) UpsertVerificationToken(ctx context.Context, token persistence.VerificationToken) error {
	if token.Identifier == "" || token.TokenHash == "" {
		return persistence.ErrConstraintViolation
	}
	const query = `
		INSERT INTO verification_tokens (identifier, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			token_hash = excluded.token_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			token.Identifier,
			token.TokenHash,
			formatTime(token.ExpiresAt),
			formatTime(token.CreatedAt),
		)
		return err
	})
}

// GetVerificationToken retrieves the challenge for identifier.
func (r *VerificationTokenRepository) GetVerificationToken(ctx context.Context, identifier string) (persistence.VerificationToken, error) {
	const query = `
		SELECT identifier, token_hash, expires_at, created_at
		FROM verification_tokens WHERE identifier = ?`

	var (
		token            persistence.VerificationToken
		expires, created string
	)
	err := r.pool.DB().QueryRowContext(ctx, query, identifier).
		Scan(&token.Identifier, &token.TokenHash, &expires, &created)
	if err != nil {
		return persistence.VerificationToken{}, r.mapper.MapError(err)
	}
	if token.ExpiresAt, err = parseTime(expires); err != nil {
		return persistence.VerificationToken{}, err
	}
	if token.CreatedAt, err = parseTime(created); err != nil {
		return persistence.VerificationToken{}, err
	}
	return token, nil
}

// DeleteVerificationToken removes the challenge for identifier.
func (r *VerificationTokenRepository) DeleteVerificationToken(ctx context.Context, identifier string) error {
	const query = `DELETE FROM verification_tokens WHERE identifier = ?`
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, query, identifier)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// DeleteExpiredVerificationTokens purges challenges that expired at or
// before reference and reports how many were removed.
func (r *VerificationTokenRepository) DeleteExpiredVerificationTokens(ctx context.Context, reference time.Time) (int64, error) {
	const query = `DELETE FROM verification_tokens WHERE expires_at <= ?`
	var removed int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, query, formatTime(reference))
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	return removed, err
}
