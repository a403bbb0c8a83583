package persistence_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/example/conference-companion/internal/persistence"
	"github.com/example/conference-companion/internal/persistence/memory"
	"github.com/example/conference-companion/internal/testfixtures"
)

type backend struct {
	Selections persistence.SelectionRepository
	Users      persistence.UserRepository
	Tokens     persistence.VerificationTokenRepository
}

// backends returns every repository implementation the contract is checked
// against.
func backends(t *testing.T) map[string]func(t *testing.T) backend {
	t.Helper()
	return map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend {
			storage := memory.Open()
			return backend{Selections: storage, Users: storage, Tokens: storage}
		},
		"sqlite": func(t *testing.T) backend {
			harness := testfixtures.NewSQLiteHarness(t)
			return backend{Selections: harness.Selections, Users: harness.Users, Tokens: harness.Tokens}
		},
	}
}

func TestSelectionRepository(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("creates, replaces, and deletes documents", func(t *testing.T) {
				ctx := context.Background()
				repo := open(t).Selections

				selection := testfixtures.NewSelectionFixture(
					testfixtures.WithFeedID("feed-a"),
					testfixtures.WithOwnerID("owner-a"),
				).Persistence()
				if err := repo.CreateSelection(ctx, selection); err != nil {
					t.Fatalf("CreateSelection failed: %v", err)
				}

				fetched, err := repo.GetSelectionByOwner(ctx, "owner-a")
				if err != nil {
					t.Fatalf("GetSelectionByOwner failed: %v", err)
				}
				if fetched.FeedID != "feed-a" || len(fetched.SelectedEventIDs) != 0 {
					t.Fatalf("unexpected selection: %#v", fetched)
				}
				if !fetched.CreatedAt.Equal(selection.CreatedAt) {
					t.Fatalf("expected created at %v, got %v", selection.CreatedAt, fetched.CreatedAt)
				}

				updatedAt := selection.UpdatedAt.Add(time.Hour)
				if err := repo.ReplaceSelectedEvents(ctx, "feed-a", "owner-a", []string{"s2", "s1"}, updatedAt); err != nil {
					t.Fatalf("ReplaceSelectedEvents failed: %v", err)
				}

				fetched, err = repo.GetSelectionByFeedID(ctx, "feed-a")
				if err != nil {
					t.Fatalf("GetSelectionByFeedID failed: %v", err)
				}
				if !slices.Equal(fetched.SelectedEventIDs, []string{"s2", "s1"}) {
					t.Fatalf("expected order-preserving ids, got %v", fetched.SelectedEventIDs)
				}
				if !fetched.UpdatedAt.Equal(updatedAt) {
					t.Fatalf("expected updated at %v, got %v", updatedAt, fetched.UpdatedAt)
				}

				if err := repo.DeleteSelection(ctx, "feed-a", "owner-a"); err != nil {
					t.Fatalf("DeleteSelection failed: %v", err)
				}
				if _, err := repo.GetSelectionByFeedID(ctx, "feed-a"); !errors.Is(err, persistence.ErrNotFound) {
					t.Fatalf("expected ErrNotFound after delete, got %v", err)
				}
				if _, err := repo.GetSelectionByOwner(ctx, "owner-a"); !errors.Is(err, persistence.ErrNotFound) {
					t.Fatalf("expected owner lookup to miss after delete, got %v", err)
				}
			})

			t.Run("rejects a second document for the same owner", func(t *testing.T) {
				ctx := context.Background()
				repo := open(t).Selections

				first := testfixtures.NewSelectionFixture(testfixtures.WithOwnerID("owner-dup")).Persistence()
				second := testfixtures.NewSelectionFixture(testfixtures.WithOwnerID("owner-dup")).Persistence()

				if err := repo.CreateSelection(ctx, first); err != nil {
					t.Fatalf("CreateSelection failed: %v", err)
				}
				if err := repo.CreateSelection(ctx, second); !errors.Is(err, persistence.ErrDuplicate) {
					t.Fatalf("expected ErrDuplicate, got %v", err)
				}

				fetched, err := repo.GetSelectionByOwner(ctx, "owner-dup")
				if err != nil {
					t.Fatalf("GetSelectionByOwner failed: %v", err)
				}
				if fetched.FeedID != first.FeedID {
					t.Fatalf("expected first document to survive, got %q", fetched.FeedID)
				}
			})

			t.Run("scopes writes to the owner", func(t *testing.T) {
				ctx := context.Background()
				repo := open(t).Selections

				selection := testfixtures.NewSelectionFixture(testfixtures.WithSelectedEventIDs("s1")).Persistence()
				if err := repo.CreateSelection(ctx, selection); err != nil {
					t.Fatalf("CreateSelection failed: %v", err)
				}

				err := repo.ReplaceSelectedEvents(ctx, selection.FeedID, "someone-else", nil, selection.UpdatedAt)
				if !errors.Is(err, persistence.ErrNotFound) {
					t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
				}
				if err := repo.DeleteSelection(ctx, selection.FeedID, "someone-else"); !errors.Is(err, persistence.ErrNotFound) {
					t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
				}

				fetched, err := repo.GetSelectionByFeedID(ctx, selection.FeedID)
				if err != nil {
					t.Fatalf("GetSelectionByFeedID failed: %v", err)
				}
				if !slices.Equal(fetched.SelectedEventIDs, []string{"s1"}) {
					t.Fatalf("selection changed by foreign owner: %v", fetched.SelectedEventIDs)
				}
			})

			t.Run("rejects documents without identity", func(t *testing.T) {
				repo := open(t).Selections
				err := repo.CreateSelection(context.Background(), persistence.Selection{OwnerID: "owner"})
				if !errors.Is(err, persistence.ErrConstraintViolation) {
					t.Fatalf("expected ErrConstraintViolation, got %v", err)
				}
			})
		})
	}
}

func TestUserRepository(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			repo := open(t).Users

			user := testfixtures.NewUserFixture(
				testfixtures.WithUserID("user-alice"),
				testfixtures.WithUserEmail("Alice@Example.com"),
			).Persistence()
			if err := repo.CreateUser(ctx, user); err != nil {
				t.Fatalf("CreateUser failed: %v", err)
			}

			fetched, err := repo.GetUserByEmail(ctx, "ALICE@EXAMPLE.COM")
			if err != nil {
				t.Fatalf("GetUserByEmail failed: %v", err)
			}
			if fetched.ID != user.ID || fetched.Email != "alice@example.com" {
				t.Fatalf("unexpected user: %#v", fetched)
			}

			if _, err := repo.GetUser(ctx, user.ID); err != nil {
				t.Fatalf("GetUser failed: %v", err)
			}

			clash := testfixtures.NewUserFixture(testfixtures.WithUserEmail("alice@example.com")).Persistence()
			if err := repo.CreateUser(ctx, clash); !errors.Is(err, persistence.ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate for email clash, got %v", err)
			}

			if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestVerificationTokenRepository(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			repo := open(t).Tokens
			base := testfixtures.ReferenceTime()

			token := persistence.VerificationToken{
				Identifier: "alice@example.com",
				TokenHash:  "digest-1",
				ExpiresAt:  base.Add(time.Hour),
				CreatedAt:  base,
			}
			if err := repo.UpsertVerificationToken(ctx, token); err != nil {
				t.Fatalf("UpsertVerificationToken failed: %v", err)
			}

			token.TokenHash = "digest-2"
			if err := repo.UpsertVerificationToken(ctx, token); err != nil {
				t.Fatalf("second UpsertVerificationToken failed: %v", err)
			}

			fetched, err := repo.GetVerificationToken(ctx, "alice@example.com")
			if err != nil {
				t.Fatalf("GetVerificationToken failed: %v", err)
			}
			if fetched.TokenHash != "digest-2" || !fetched.ExpiresAt.Equal(token.ExpiresAt) {
				t.Fatalf("unexpected token: %#v", fetched)
			}

			stale := persistence.VerificationToken{
				Identifier: "bob@example.com",
				TokenHash:  "digest-3",
				ExpiresAt:  base.Add(-time.Minute),
				CreatedAt:  base.Add(-time.Hour),
			}
			if err := repo.UpsertVerificationToken(ctx, stale); err != nil {
				t.Fatalf("UpsertVerificationToken failed: %v", err)
			}

			removed, err := repo.DeleteExpiredVerificationTokens(ctx, base)
			if err != nil {
				t.Fatalf("DeleteExpiredVerificationTokens failed: %v", err)
			}
			if removed != 1 {
				t.Fatalf("expected 1 expired token removed, got %d", removed)
			}
			if _, err := repo.GetVerificationToken(ctx, "bob@example.com"); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected expired token to be gone, got %v", err)
			}

			if err := repo.DeleteVerificationToken(ctx, "alice@example.com"); err != nil {
				t.Fatalf("DeleteVerificationToken failed: %v", err)
			}
			if err := repo.DeleteVerificationToken(ctx, "alice@example.com"); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected ErrNotFound on second delete, got %v", err)
			}
		})
	}
}
