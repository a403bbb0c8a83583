package scheduler

import (
	"reflect"
	"testing"
	"time"

	"github.com/example/conference-companion/internal/catalog"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 8, 14, hour, minute, 0, 0, time.UTC)
}

func fixtureCatalog() *catalog.Snapshot {
	return catalog.NewSnapshot([]catalog.Session{
		{DocumentID: "s1", Title: "Keynote", Start: at(10, 0), End: at(11, 0)},
		{DocumentID: "s2", Title: "Workshop", Start: at(10, 30), End: at(11, 30)},
		{DocumentID: "s3", Title: "Lunch Talk", Start: at(11, 0), End: at(12, 0)},
		{DocumentID: "s4", Title: "Panel", Start: at(9, 0), End: at(13, 0)},
	}, nil, time.Time{})
}

func TestConflictsFor(t *testing.T) {
	snap := fixtureCatalog()

	t.Run("overlapping sessions report each other", func(t *testing.T) {
		s1, _ := snap.Session("s1")
		s2, _ := snap.Session("s2")
		selection := []string{"s1", "s2"}

		if got := ConflictsFor(s1, selection, snap); !reflect.DeepEqual(got, []string{"Workshop"}) {
			t.Fatalf("expected [Workshop] for s1, got %v", got)
		}
		if got := ConflictsFor(s2, selection, snap); !reflect.DeepEqual(got, []string{"Keynote"}) {
			t.Fatalf("expected [Keynote] for s2, got %v", got)
		}
	})

	t.Run("touching endpoints do not conflict", func(t *testing.T) {
		s1, _ := snap.Session("s1")
		s3, _ := snap.Session("s3")
		selection := []string{"s1", "s3"}

		if got := ConflictsFor(s1, selection, snap); len(got) != 0 {
			t.Fatalf("expected no conflicts for s1, got %v", got)
		}
		if got := ConflictsFor(s3, selection, snap); len(got) != 0 {
			t.Fatalf("expected no conflicts for s3, got %v", got)
		}
	})

	t.Run("titles follow selection order and skip stale or repeated ids", func(t *testing.T) {
		s4, _ := snap.Session("s4")
		selection := []string{"s3", "missing", "s1", "s4", "s3", "s2"}

		got := ConflictsFor(s4, selection, snap)
		want := []string{"Lunch Talk", "Keynote", "Workshop"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("session outside the selection still gets conflicts", func(t *testing.T) {
		s2, _ := snap.Session("s2")
		got := ConflictsFor(s2, []string{"s1", "s3"}, snap)
		if !reflect.DeepEqual(got, []string{"Keynote", "Lunch Talk"}) {
			t.Fatalf("unexpected conflicts: %v", got)
		}
	})
}

func TestDetectConflicts(t *testing.T) {
	snap := fixtureCatalog()

	t.Run("conflicts are symmetric", func(t *testing.T) {
		result := DetectConflicts([]string{"s1", "s2", "s3", "s4"}, snap)
		for id, conflicts := range result {
			for _, c := range conflicts {
				back := result[c.WithSessionID]
				found := false
				for _, other := range back {
					if other.WithSessionID == id {
						found = true
					}
				}
				if !found {
					t.Fatalf("%s conflicts with %s but not the reverse", id, c.WithSessionID)
				}
			}
		}
		if len(result["s4"]) != 3 {
			t.Fatalf("expected panel to conflict with three sessions, got %v", result["s4"])
		}
	})

	t.Run("single selection has no conflicts", func(t *testing.T) {
		if result := DetectConflicts([]string{"s1"}, snap); len(result) != 0 {
			t.Fatalf("expected no conflicts, got %v", result)
		}
	})
}
