package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/conference-companion/internal/catalog"
	"github.com/example/conference-companion/internal/persistence"
)

var (
	userCounter      uint64
	sessionCounter   uint64
	selectionCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic attendee account.
type UserFixture struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:        id,
		Email:     fmt.Sprintf("%s@example.com", id),
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// Persistence converts the fixture into a persistence.User.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:        f.ID,
		Email:     f.Email,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// -------------------------- Selection fixtures ---------------------------

// SelectionFixture represents a deterministic selection document.
type SelectionFixture struct {
	FeedID           string
	OwnerID          string
	SelectedEventIDs []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SelectionOption configures the generated selection fixture.
type SelectionOption func(*SelectionFixture)

// NewSelectionFixture returns an empty selection owned by a generated user.
func NewSelectionFixture(opts ...SelectionOption) SelectionFixture {
	idx := atomic.AddUint64(&selectionCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := SelectionFixture{
		FeedID:           fmt.Sprintf("feed-%03d", idx),
		OwnerID:          fmt.Sprintf("owner-%03d", idx),
		SelectedEventIDs: []string{},
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithFeedID overrides the generated feed id.
func WithFeedID(id string) SelectionOption {
	return func(f *SelectionFixture) {
		f.FeedID = id
	}
}

// WithOwnerID overrides the generated owner.
func WithOwnerID(id string) SelectionOption {
	return func(f *SelectionFixture) {
		f.OwnerID = id
	}
}

// WithSelectedEventIDs sets the bookmarked document ids.
func WithSelectedEventIDs(ids ...string) SelectionOption {
	return func(f *SelectionFixture) {
		f.SelectedEventIDs = append([]string{}, ids...)
	}
}

// Persistence converts the fixture into a persistence.Selection.
func (f SelectionFixture) Persistence() persistence.Selection {
	return persistence.Selection{
		FeedID:           f.FeedID,
		OwnerID:          f.OwnerID,
		SelectedEventIDs: append([]string{}, f.SelectedEventIDs...),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// --------------------------- Session fixtures ----------------------------

// SessionFixture represents a deterministic catalog session.
type SessionFixture struct {
	catalog.Session
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a one hour talk starting on the hour after
// ReferenceTime, offset by one hour per generated fixture.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	start := referenceTime.Truncate(time.Hour).Add(time.Duration(idx) * time.Hour)
	fixture := SessionFixture{Session: catalog.Session{
		ID:          int(idx),
		DocumentID:  fmt.Sprintf("session-%03d", idx),
		Title:       fmt.Sprintf("Session %03d", idx),
		Track:       catalog.Tracks[0],
		Type:        "Talk",
		Start:       start,
		End:         start.Add(time.Hour),
		Room:        catalog.Stages[0],
		Description: fmt.Sprintf("Description of session %03d", idx),
		Speakers:    map[string]string{},
		UpdatedAt:   start.Add(-24 * time.Hour),
	}}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionDocumentID overrides the document id.
func WithSessionDocumentID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.DocumentID = id
	}
}

// WithSessionTitle overrides the title.
func WithSessionTitle(title string) SessionOption {
	return func(f *SessionFixture) {
		f.Title = title
	}
}

// WithSessionWindow sets the start and end instants.
func WithSessionWindow(start, end time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.Start = start
		f.End = end
	}
}

// WithSessionRoom overrides the room.
func WithSessionRoom(room string) SessionOption {
	return func(f *SessionFixture) {
		f.Room = room
	}
}

// WithSessionSpeaker adds a speaker under role.
func WithSessionSpeaker(role, name string) SessionOption {
	return func(f *SessionFixture) {
		if f.Speakers == nil {
			f.Speakers = map[string]string{}
		}
		f.Speakers[role] = name
	}
}

// Catalog returns the fixture as a catalog.Session.
func (f SessionFixture) Catalog() catalog.Session {
	session := f.Session
	session.Speakers = make(map[string]string, len(f.Speakers))
	for role, name := range f.Speakers {
		session.Speakers[role] = name
	}
	return session
}

// NewSnapshot builds a catalog snapshot from session fixtures.
func NewSnapshot(fixtures ...SessionFixture) *catalog.Snapshot {
	sessions := make([]catalog.Session, 0, len(fixtures))
	for _, f := range fixtures {
		sessions = append(sessions, f.Catalog())
	}
	return catalog.NewSnapshot(sessions, nil, referenceTime)
}
