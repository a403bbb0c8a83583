// Package storage opens the configured persistence backend and adapts it to
// the repository interfaces of the application layer.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/conference-companion/internal/persistence"
	"github.com/example/conference-companion/internal/persistence/memory"
	"github.com/example/conference-companion/internal/persistence/postgres"
	"github.com/example/conference-companion/internal/persistence/sqlite"
	"github.com/example/conference-companion/internal/persistence/sqlite/migration"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Backend is a persistence implementation with its lifecycle.
type Backend interface {
	persistence.SelectionRepository
	persistence.UserRepository
	persistence.VerificationTokenRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and locates the backend.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open connects to the backend named by opts.Driver and applies its schema.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverSQLite, "":
		backend, err = sqlite.Open(migration.DefaultSQLiteConfig(opts.SQLitePath), logger)
	case DriverPostgres:
		backend, err = postgres.Open(ctx, opts.PostgresDSN)
	case DriverMemory:
		backend = memory.Open()
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := backend.Migrate(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return backend, nil
}
