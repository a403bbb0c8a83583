package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/conference-companion/internal/persistence"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows), persistence.ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "selections_owner_id_key"}), persistence.ErrDuplicate)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: checkViolation}), persistence.ErrConstraintViolation)

	other := errors.New("boom")
	assert.Same(t, other, mapError(other))
}

// TestStorage runs against a live database when COMPANION_TEST_POSTGRES_DSN
// is set.
func TestStorage(t *testing.T) {
	dsn := os.Getenv("COMPANION_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COMPANION_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	storage, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	require.NoError(t, storage.Migrate(ctx))

	suffix := time.Now().UTC().Format("20060102150405.000000000")
	now := time.Now().UTC().Truncate(time.Microsecond)
	selection := persistence.Selection{
		FeedID:           "feed-" + suffix,
		OwnerID:          "owner-" + suffix,
		SelectedEventIDs: []string{"b", "a"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, storage.CreateSelection(ctx, selection))
	t.Cleanup(func() { _ = storage.DeleteSelection(ctx, selection.FeedID, selection.OwnerID) })

	dup := selection
	dup.FeedID = "other-" + suffix
	assert.ErrorIs(t, storage.CreateSelection(ctx, dup), persistence.ErrDuplicate)

	fetched, err := storage.GetSelectionByOwner(ctx, selection.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, fetched.SelectedEventIDs)
	assert.True(t, fetched.CreatedAt.Equal(now))

	assert.ErrorIs(t, storage.ReplaceSelectedEvents(ctx, selection.FeedID, "intruder", nil, now), persistence.ErrNotFound)
	require.NoError(t, storage.ReplaceSelectedEvents(ctx, selection.FeedID, selection.OwnerID, nil, now))

	fetched, err = storage.GetSelectionByFeedID(ctx, selection.FeedID)
	require.NoError(t, err)
	assert.Empty(t, fetched.SelectedEventIDs)
}
