// Package memory provides a process-local persistence layer used for tests
// and single-instance development runs.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/example/conference-companion/internal/persistence"
)

// Storage keeps every record in maps guarded by a single lock.
type Storage struct {
	mu         sync.RWMutex
	selections map[string]persistence.Selection
	owners     map[string]string
	users      map[string]persistence.User
	tokens     map[string]persistence.VerificationToken
}

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		selections: make(map[string]persistence.Selection),
		owners:     make(map[string]string),
		users:      make(map[string]persistence.User),
		tokens:     make(map[string]persistence.VerificationToken),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Migrate is a no-op.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// --- SelectionRepository implementation ---

// CreateSelection inserts a document if neither its feed id nor its owner is taken.
func (s *Storage) CreateSelection(ctx context.Context, selection persistence.Selection) error {
	if selection.FeedID == "" || selection.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.selections[selection.FeedID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.owners[selection.OwnerID]; ok {
		return persistence.ErrDuplicate
	}

	s.selections[selection.FeedID] = cloneSelection(selection)
	s.owners[selection.OwnerID] = selection.FeedID
	return nil
}

// GetSelectionByFeedID retrieves a document by its feed id.
func (s *Storage) GetSelectionByFeedID(ctx context.Context, feedID string) (persistence.Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	selection, ok := s.selections[feedID]
	if !ok {
		return persistence.Selection{}, persistence.ErrNotFound
	}
	return cloneSelection(selection), nil
}

// GetSelectionByOwner retrieves the document owned by ownerID.
func (s *Storage) GetSelectionByOwner(ctx context.Context, ownerID string) (persistence.Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feedID, ok := s.owners[ownerID]
	if !ok {
		return persistence.Selection{}, persistence.ErrNotFound
	}
	return cloneSelection(s.selections[feedID]), nil
}

// ReplaceSelectedEvents overwrites the selection when feed id and owner match.
func (s *Storage) ReplaceSelectedEvents(ctx context.Context, feedID, ownerID string, eventIDs []string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	selection, ok := s.selections[feedID]
	if !ok || selection.OwnerID != ownerID {
		return persistence.ErrNotFound
	}
	selection.SelectedEventIDs = append([]string{}, eventIDs...)
	selection.UpdatedAt = updatedAt
	s.selections[feedID] = selection
	return nil
}

// DeleteSelection removes the document when feed id and owner match.
func (s *Storage) DeleteSelection(ctx context.Context, feedID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	selection, ok := s.selections[feedID]
	if !ok || selection.OwnerID != ownerID {
		return persistence.ErrNotFound
	}
	delete(s.selections, feedID)
	delete(s.owners, selection.OwnerID)
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user with a unique, case-insensitive email.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return persistence.ErrDuplicate
		}
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// --- VerificationTokenRepository implementation ---

// UpsertVerificationToken stores or replaces the challenge for an identifier.
func (s *Storage) UpsertVerificationToken(ctx context.Context, token persistence.VerificationToken) error {
	if token.Identifier == "" || token.TokenHash == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.Identifier] = token
	return nil
}

// GetVerificationToken retrieves the challenge for an identifier.
func (s *Storage) GetVerificationToken(ctx context.Context, identifier string) (persistence.VerificationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[identifier]
	if !ok {
		return persistence.VerificationToken{}, persistence.ErrNotFound
	}
	return token, nil
}

// DeleteVerificationToken removes the challenge for an identifier.
func (s *Storage) DeleteVerificationToken(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[identifier]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.tokens, identifier)
	return nil
}

// DeleteExpiredVerificationTokens purges challenges that expired at or before reference.
func (s *Storage) DeleteExpiredVerificationTokens(ctx context.Context, reference time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for identifier, token := range s.tokens {
		if !token.ExpiresAt.After(reference) {
			delete(s.tokens, identifier)
			removed++
		}
	}
	return removed, nil
}

func cloneSelection(selection persistence.Selection) persistence.Selection {
	clone := selection
	clone.SelectedEventIDs = append([]string{}, selection.SelectedEventIDs...)
	return clone
}
