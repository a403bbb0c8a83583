package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/conference-companion/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool   *ConnectionPool
	retry  *RetryHelper
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(pool *ConnectionPool, retry *RetryHelper) *UserRepository {
	return &UserRepository{pool: pool, retry: retry, mapper: NewErrorMapper()}
}

// CreateUser inserts a new user. Emails are unique regardless of case.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}

	const query = `
		INSERT INTO users (id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)`
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			user.ID,
			normalizeEmail(user.Email),
			formatTime(user.CreatedAt),
			formatTime(user.UpdatedAt),
		)
		return err
	})
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	const query = `SELECT id, email, created_at, updated_at FROM users WHERE id = ?`
	return r.scanUser(r.pool.DB().QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	const query = `SELECT id, email, created_at, updated_at FROM users WHERE email = ?`
	return r.scanUser(r.pool.DB().QueryRowContext(ctx, query, normalizeEmail(email)))
}

func (r *UserRepository) scanUser(row *sql.Row) (persistence.User, error) {
	var (
		user             persistence.User
		created, updated string
	)
	if err := row.Scan(&user.ID, &user.Email, &created, &updated); err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	var err error
	if user.CreatedAt, err = parseTime(created); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updated); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
