package catalog

import (
	"strings"
	"time"
)

// Snapshot is an immutable view of the catalog at one point in time.
type Snapshot struct {
	sessions []Session
	byID     map[string]int
	speakers []Speaker
	byName   map[string]int
	loadedAt time.Time
}

// NewSnapshot indexes the provided sessions and speakers. The input order is
// preserved and treated as catalog order. Later duplicates of a document id
// are ignored.
func NewSnapshot(sessions []Session, speakers []Speaker, loadedAt time.Time) *Snapshot {
	snap := &Snapshot{
		sessions: make([]Session, 0, len(sessions)),
		byID:     make(map[string]int, len(sessions)),
		speakers: make([]Speaker, 0, len(speakers)),
		byName:   make(map[string]int, len(speakers)),
		loadedAt: loadedAt,
	}
	for _, s := range sessions {
		if _, exists := snap.byID[s.DocumentID]; exists {
			continue
		}
		snap.byID[s.DocumentID] = len(snap.sessions)
		snap.sessions = append(snap.sessions, s)
	}
	for _, sp := range speakers {
		if _, exists := snap.byName[sp.Name]; exists {
			continue
		}
		snap.byName[sp.Name] = len(snap.speakers)
		snap.speakers = append(snap.speakers, sp)
	}
	return snap
}

// Sessions returns a copy of the sessions in catalog order.
func (s *Snapshot) Sessions() []Session {
	if s == nil {
		return nil
	}
	return append([]Session(nil), s.sessions...)
}

// Speakers returns a copy of the speakers in catalog order.
func (s *Snapshot) Speakers() []Speaker {
	if s == nil {
		return nil
	}
	return append([]Speaker(nil), s.speakers...)
}

// Len returns the number of sessions.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sessions)
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// Session looks up a session by document id.
func (s *Snapshot) Session(documentID string) (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	idx, ok := s.byID[documentID]
	if !ok {
		return Session{}, false
	}
	return s.sessions[idx], true
}

// Speaker looks up a speaker by display name.
func (s *Snapshot) Speaker(name string) (Speaker, bool) {
	if s == nil {
		return Speaker{}, false
	}
	idx, ok := s.byName[name]
	if !ok {
		return Speaker{}, false
	}
	return s.speakers[idx], true
}

// Resolve returns the sessions whose ids appear in ids, in catalog order.
// Unknown ids are dropped.
func (s *Snapshot) Resolve(ids []string) []Session {
	if s == nil || len(ids) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	resolved := make([]Session, 0, len(wanted))
	for _, session := range s.sessions {
		if _, ok := wanted[session.DocumentID]; ok {
			resolved = append(resolved, session)
		}
	}
	return resolved
}

// Search returns sessions whose title, description or speaker names contain
// the query, case-insensitively. A blank query matches everything.
func (s *Snapshot) Search(query string) []Session {
	if s == nil {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return s.Sessions()
	}

	matches := make([]Session, 0)
	for _, session := range s.sessions {
		fields := []string{session.Title, session.Description, strings.Join(session.SpeakerNames(), " ")}
		for _, field := range fields {
			if field != "" && strings.Contains(strings.ToLower(field), needle) {
				matches = append(matches, session)
				break
			}
		}
	}
	return matches
}
