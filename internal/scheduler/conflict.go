package scheduler

import "github.com/example/conference-companion/internal/catalog"

// SessionLookup resolves a session by document id.
type SessionLookup interface {
	Session(documentID string) (catalog.Session, bool)
}

// Conflict records that a selected session overlaps another selected session.
type Conflict struct {
	SessionID     string
	WithSessionID string
	WithTitle     string
}

// ConflictsFor returns the titles of selected sessions whose time window
// overlaps target, in selection order. The target itself, unknown ids and
// repeated ids are skipped.
func ConflictsFor(target catalog.Session, selection []string, lookup SessionLookup) []string {
	conflicts := conflictsFor(target, selection, lookup)
	if len(conflicts) == 0 {
		return nil
	}
	titles := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		titles = append(titles, c.WithTitle)
	}
	return titles
}

// DetectConflicts computes the conflicts of every resolvable session in the
// selection. The result is keyed by session id; sessions without conflicts
// are omitted.
func DetectConflicts(selection []string, lookup SessionLookup) map[string][]Conflict {
	if lookup == nil || len(selection) < 2 {
		return nil
	}
	result := make(map[string][]Conflict)
	seen := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		target, ok := lookup.Session(id)
		if !ok {
			continue
		}
		if conflicts := conflictsFor(target, selection, lookup); len(conflicts) > 0 {
			result[id] = conflicts
		}
	}
	return result
}

func conflictsFor(target catalog.Session, selection []string, lookup SessionLookup) []Conflict {
	if lookup == nil {
		return nil
	}
	var conflicts []Conflict
	seen := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		if id == target.DocumentID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		other, ok := lookup.Session(id)
		if !ok || !target.Overlaps(other) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			SessionID:     target.DocumentID,
			WithSessionID: other.DocumentID,
			WithTitle:     other.Title,
		})
	}
	return conflicts
}
