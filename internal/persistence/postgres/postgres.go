// Package postgres implements the persistence repositories on PostgreSQL
// through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/conference-companion/internal/persistence"
)

const connectTimeout = 15 * time.Second

// Storage implements every persistence repository over a pgx pool.
type Storage struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Storage{pool: pool}, nil
}

// NewStorage wraps an existing pool.
func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Migrate creates the schema if needed.
func (s *Storage) Migrate(ctx context.Context) error {
	return RunMigration(ctx, s.pool)
}

// Ping checks the connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// --- SelectionRepository implementation ---

// CreateSelection inserts a document guarded by the unique owner index.
func (s *Storage) CreateSelection(ctx context.Context, selection persistence.Selection) error {
	if selection.FeedID == "" || selection.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO selections (feed_id, owner_id, selected_event_ids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		selection.FeedID, selection.OwnerID, eventIDs(selection.SelectedEventIDs),
		selection.CreatedAt.UTC(), selection.UpdatedAt.UTC())
	return mapError(err)
}

// GetSelectionByFeedID retrieves a document by feed id.
func (s *Storage) GetSelectionByFeedID(ctx context.Context, feedID string) (persistence.Selection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT feed_id, owner_id, selected_event_ids, created_at, updated_at
		 FROM selections WHERE feed_id = $1`, feedID)
	return scanSelection(row)
}

// GetSelectionByOwner retrieves the document owned by ownerID.
func (s *Storage) GetSelectionByOwner(ctx context.Context, ownerID string) (persistence.Selection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT feed_id, owner_id, selected_event_ids, created_at, updated_at
		 FROM selections WHERE owner_id = $1`, ownerID)
	return scanSelection(row)
}

// ReplaceSelectedEvents overwrites the selection of the matching document.
func (s *Storage) ReplaceSelectedEvents(ctx context.Context, feedID, ownerID string, ids []string, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE selections SET selected_event_ids = $3, updated_at = $4
		 WHERE feed_id = $1 AND owner_id = $2`,
		feedID, ownerID, eventIDs(ids), updatedAt.UTC())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DeleteSelection removes the matching document.
func (s *Storage) DeleteSelection(ctx context.Context, feedID, ownerID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM selections WHERE feed_id = $1 AND owner_id = $2`, feedID, ownerID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func scanSelection(row pgx.Row) (persistence.Selection, error) {
	var selection persistence.Selection
	err := row.Scan(&selection.FeedID, &selection.OwnerID, &selection.SelectedEventIDs,
		&selection.CreatedAt, &selection.UpdatedAt)
	if err != nil {
		return persistence.Selection{}, mapError(err)
	}
	selection.SelectedEventIDs = eventIDs(selection.SelectedEventIDs)
	selection.CreatedAt = selection.CreatedAt.UTC()
	selection.UpdatedAt = selection.UpdatedAt.UTC()
	return selection, nil
}

// --- UserRepository implementation ---

// CreateUser inserts a user with a lower-cased email.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID == "" || email == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		user.ID, email, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	return mapError(err)
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, created_at, updated_at FROM users WHERE id = $1`, id))
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, created_at, updated_at FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email)))
}

func scanUser(row pgx.Row) (persistence.User, error) {
	var user persistence.User
	if err := row.Scan(&user.ID, &user.Email, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// --- VerificationTokenRepository implementation ---

// UpsertVerificationToken stores or replaces the challenge for an identifier.
func (s *Storage) UpsertVerificationToken(ctx context.Context, token persistence.VerificationToken) error {
	if token.Identifier == "" || token.TokenHash == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_tokens (identifier, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identifier) DO UPDATE SET
		   token_hash = EXCLUDED.token_hash,
		   expires_at = EXCLUDED.expires_at,
		   created_at = EXCLUDED.created_at`,
		token.Identifier, token.TokenHash, token.ExpiresAt.UTC(), token.CreatedAt.UTC())
	return mapError(err)
}

// GetVerificationToken retrieves the challenge for identifier.
func (s *Storage) GetVerificationToken(ctx context.Context, identifier string) (persistence.VerificationToken, error) {
	var token persistence.VerificationToken
	err := s.pool.QueryRow(ctx,
		`SELECT identifier, token_hash, expires_at, created_at
		 FROM verification_tokens WHERE identifier = $1`, identifier).
		Scan(&token.Identifier, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		return persistence.VerificationToken{}, mapError(err)
	}
	token.ExpiresAt = token.ExpiresAt.UTC()
	token.CreatedAt = token.CreatedAt.UTC()
	return token, nil
}

// DeleteVerificationToken removes the challenge for identifier.
func (s *Storage) DeleteVerificationToken(ctx context.Context, identifier string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE identifier = $1`, identifier)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DeleteExpiredVerificationTokens purges challenges expired at or before reference.
func (s *Storage) DeleteExpiredVerificationTokens(ctx context.Context, reference time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE expires_at <= $1`, reference.UTC())
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

// SQLSTATE classes used by mapError.
const (
	uniqueViolation     = "23505"
	checkViolation      = "23514"
	notNullViolation    = "23502"
	foreignKeyViolation = "23503"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.ConstraintName)
		case checkViolation, notNullViolation, foreignKeyViolation:
			return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.ConstraintName)
		}
	}
	return err
}

func eventIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
