package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/example/conference-companion/internal/persistence"
	"github.com/example/conference-companion/internal/persistence/sqlite"
	"github.com/example/conference-companion/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a migrated in-memory
// SQLite database.
type SQLiteHarness struct {
	Selections persistence.SelectionRepository
	Users      persistence.UserRepository
	Tokens     persistence.VerificationTokenRepository
	Storage    *sqlite.Storage

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a private database. Close is
// registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage, err := sqlite.Open(migration.InMemoryTestSQLiteConfig(), logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Selections: storage,
		Users:      storage,
		Tokens:     storage,
		Storage:    storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
