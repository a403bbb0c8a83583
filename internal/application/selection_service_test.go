package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSelectionService(repo SelectionRepository) *SelectionService {
	var counter atomic.Int64
	ids := func() string { return fmt.Sprintf("feed-%d", counter.Add(1)) }
	now := func() time.Time { return time.Date(2025, time.May, 20, 8, 0, 0, 0, time.UTC) }
	return NewSelectionService(repo, ids, now)
}

func TestSelectionService_EnsureProvisioned(t *testing.T) {
	t.Parallel()

	alice := Principal{UserID: "alice"}

	t.Run("creates once and returns the same document afterwards", func(t *testing.T) {
		t.Parallel()
		repo := newMemorySelections()
		svc := newTestSelectionService(repo)
		ctx := context.Background()

		doc, created, err := svc.EnsureProvisioned(ctx, alice, []string{" s1 ", "s1", "", "s2"})
		if err != nil {
			t.Fatalf("EnsureProvisioned returned error: %v", err)
		}
		if !created {
			t.Fatalf("expected first call to create the document")
		}
		if !slices.Equal(doc.SelectedEventIDs, []string{"s1", "s2"}) {
			t.Fatalf("expected normalized initial selection, got %v", doc.SelectedEventIDs)
		}

		again, created, err := svc.EnsureProvisioned(ctx, alice, []string{"s3"})
		if err != nil {
			t.Fatalf("second EnsureProvisioned returned error: %v", err)
		}
		if created {
			t.Fatalf("expected second call to find the existing document")
		}
		if again.FeedID != doc.FeedID {
			t.Fatalf("expected feed id %q, got %q", doc.FeedID, again.FeedID)
		}
		if !slices.Equal(again.SelectedEventIDs, []string{"s1", "s2"}) {
			t.Fatalf("existing selection must not be overwritten, got %v", again.SelectedEventIDs)
		}
	})

	t.Run("concurrent calls converge on one document", func(t *testing.T) {
		t.Parallel()
		repo := newMemorySelections()
		svc := newTestSelectionService(repo)

		const callers = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			feedIDs = make(map[string]struct{})
			created atomic.Int32
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				doc, wasCreated, err := svc.EnsureProvisioned(context.Background(), alice, nil)
				if err != nil {
					t.Errorf("EnsureProvisioned returned error: %v", err)
					return
				}
				if wasCreated {
					created.Add(1)
				}
				mu.Lock()
				feedIDs[doc.FeedID] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()

		if len(feedIDs) != 1 {
			t.Fatalf("expected one feed id across callers, got %v", feedIDs)
		}
		if created.Load() != 1 {
			t.Fatalf("expected exactly one caller to report creation, got %d", created.Load())
		}
		if repo.count() != 1 {
			t.Fatalf("expected one stored document, got %d", repo.count())
		}
	})

	t.Run("a lost insert race returns the winner", func(t *testing.T) {
		t.Parallel()
		repo := newMemorySelections()
		winner := SelectionDocument{FeedID: "winner", OwnerUserID: "alice", SelectedEventIDs: []string{"w"}}
		repo.beforeCreate = func() {
			repo.beforeCreate = nil
			if err := repo.CreateSelection(context.Background(), winner); err != nil {
				t.Errorf("seeding winner failed: %v", err)
			}
		}
		svc := newTestSelectionService(repo)

		doc, created, err := svc.EnsureProvisioned(context.Background(), alice, []string{"mine"})
		if err != nil {
			t.Fatalf("EnsureProvisioned returned error: %v", err)
		}
		if created {
			t.Fatalf("expected the losing caller to report created=false")
		}
		if doc.FeedID != "winner" || !slices.Equal(doc.SelectedEventIDs, []string{"w"}) {
			t.Fatalf("expected winner document, got %#v", doc)
		}
	})

	t.Run("a cancelled caller does not fail callers sharing its round trip", func(t *testing.T) {
		t.Parallel()
		repo := newMemorySelections()
		entered := make(chan struct{})
		release := make(chan struct{})
		repo.beforeCreate = func() {
			close(entered)
			<-release
		}
		svc := newTestSelectionService(repo)

		leaderCtx, cancel := context.WithCancel(context.Background())
		leaderErr := make(chan error, 1)
		go func() {
			_, _, err := svc.EnsureProvisioned(leaderCtx, alice, nil)
			leaderErr <- err
		}()
		<-entered

		type outcome struct {
			doc SelectionDocument
			err error
		}
		follower := make(chan outcome, 1)
		go func() {
			doc, _, err := svc.EnsureProvisioned(context.Background(), alice, nil)
			follower <- outcome{doc, err}
		}()

		cancel()
		if err := <-leaderErr; !errors.Is(err, context.Canceled) {
			t.Fatalf("expected the cancelled caller to stop with context.Canceled, got %v", err)
		}

		close(release)
		got := <-follower
		if got.err != nil {
			t.Fatalf("follower failed: %v", got.err)
		}
		if got.doc.FeedID == "" || repo.count() != 1 {
			t.Fatalf("expected the shared document to be stored once, got %#v (count %d)", got.doc, repo.count())
		}
	})

	t.Run("requires identity", func(t *testing.T) {
		t.Parallel()
		svc := newTestSelectionService(newMemorySelections())
		if _, _, err := svc.EnsureProvisioned(context.Background(), Principal{}, nil); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("store failures propagate", func(t *testing.T) {
		t.Parallel()
		repo := newMemorySelections()
		repo.createErr = errors.New("disk full")
		svc := newTestSelectionService(repo)
		if _, _, err := svc.EnsureProvisioned(context.Background(), alice, nil); err == nil || ErrorKind(err) != "unexpected" {
			t.Fatalf("expected unexpected error, got %v", err)
		}
	})
}

func TestSelectionService_ReplaceAllAndRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	alice := Principal{UserID: "alice"}
	bob := Principal{UserID: "bob"}

	repo := newMemorySelections()
	svc := newTestSelectionService(repo)
	observer := &recordingObserver{}
	svc.SetObserver(observer)

	doc, _, err := svc.EnsureProvisioned(ctx, alice, []string{"s1"})
	if err != nil {
		t.Fatalf("EnsureProvisioned returned error: %v", err)
	}

	if _, err := svc.ReplaceAll(ctx, bob, doc.FeedID, []string{"x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign owner, got %v", err)
	}
	if untouched, err := svc.Load(ctx, alice); err != nil || !slices.Equal(untouched.SelectedEventIDs, []string{"s1"}) {
		t.Fatalf("forbidden update must leave the document unchanged, got %v (err %v)", untouched.SelectedEventIDs, err)
	}
	if _, err := svc.ReplaceAll(ctx, alice, "missing", []string{"x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown feed, got %v", err)
	}
	var vErr *ValidationError
	if _, err := svc.ReplaceAll(ctx, alice, "  ", nil); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for blank feed id, got %v", err)
	}

	updated, err := svc.ReplaceAll(ctx, alice, doc.FeedID, []string{"s2", "s1", "s2"})
	if err != nil {
		t.Fatalf("ReplaceAll returned error: %v", err)
	}
	if !slices.Equal(updated.SelectedEventIDs, []string{"s2", "s1"}) {
		t.Fatalf("expected deduplicated selection, got %v", updated.SelectedEventIDs)
	}

	loaded, err := svc.Load(ctx, alice)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !slices.Equal(loaded.SelectedEventIDs, []string{"s2", "s1"}) {
		t.Fatalf("expected persisted selection, got %v", loaded.SelectedEventIDs)
	}

	if err := svc.Remove(ctx, bob, doc.FeedID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on foreign delete, got %v", err)
	}
	if kept, err := svc.Load(ctx, alice); err != nil || !slices.Equal(kept.SelectedEventIDs, []string{"s2", "s1"}) {
		t.Fatalf("forbidden delete must leave the document unchanged, got %v (err %v)", kept.SelectedEventIDs, err)
	}
	if err := svc.Remove(ctx, alice, doc.FeedID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, err := svc.Load(ctx, alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}

	if _, err := svc.Load(ctx, Principal{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without identity, got %v", err)
	}

	if len(observer.operations) == 0 || observer.operations[0] != "provision" {
		t.Fatalf("expected observer to see provisioning first, got %v", observer.operations)
	}
}

func TestSelectionService_Save(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	alice := Principal{UserID: "alice"}
	svc := newTestSelectionService(newMemorySelections())

	var vErr *ValidationError
	if _, err := svc.Save(ctx, alice, []string{" ", ""}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty selection, got %v", err)
	}
	if _, ok := vErr.FieldErrors["selectedEventIds"]; !ok {
		t.Fatalf("expected selectedEventIds field error, got %v", vErr.FieldErrors)
	}

	first, err := svc.Save(ctx, alice, []string{"s1"})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	second, err := svc.Save(ctx, alice, []string{"s3", "s4"})
	if err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}
	if second.FeedID != first.FeedID {
		t.Fatalf("expected feed id to be kept, got %q then %q", first.FeedID, second.FeedID)
	}
	if !slices.Equal(second.SelectedEventIDs, []string{"s3", "s4"}) {
		t.Fatalf("expected replaced selection, got %v", second.SelectedEventIDs)
	}
}

func TestNormalizeEventIDs(t *testing.T) {
	t.Parallel()

	got := NormalizeEventIDs([]string{"b", " a", "b", "", "a "})
	if !slices.Equal(got, []string{"b", "a"}) {
		t.Fatalf("unexpected normalization: %v", got)
	}
	if got := NormalizeEventIDs(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
