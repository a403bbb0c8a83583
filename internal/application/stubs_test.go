package application

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memorySelections struct {
	mu        sync.Mutex
	byFeed    map[string]SelectionDocument
	creates   int
	createErr error
	// beforeCreate runs without the lock held, letting tests widen races.
	beforeCreate func()
}

func newMemorySelections() *memorySelections {
	return &memorySelections{byFeed: make(map[string]SelectionDocument)}
}

func (m *memorySelections) CreateSelection(ctx context.Context, doc SelectionDocument) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.byFeed {
		if existing.OwnerUserID == doc.OwnerUserID {
			return ErrAlreadyExists
		}
	}
	if _, ok := m.byFeed[doc.FeedID]; ok {
		return ErrAlreadyExists
	}
	m.byFeed[doc.FeedID] = cloneDocument(doc)
	return nil
}

func (m *memorySelections) GetSelectionByFeedID(ctx context.Context, feedID string) (SelectionDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.byFeed[feedID]
	if !ok {
		return SelectionDocument{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *memorySelections) GetSelectionByOwner(ctx context.Context, ownerID string) (SelectionDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.byFeed {
		if doc.OwnerUserID == ownerID {
			return cloneDocument(doc), nil
		}
	}
	return SelectionDocument{}, ErrNotFound
}

func (m *memorySelections) ReplaceSelectedEvents(ctx context.Context, feedID, ownerID string, ids []string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.byFeed[feedID]
	if !ok || doc.OwnerUserID != ownerID {
		return ErrNotFound
	}
	doc.SelectedEventIDs = append([]string{}, ids...)
	doc.UpdatedAt = updatedAt
	m.byFeed[feedID] = doc
	return nil
}

func (m *memorySelections) DeleteSelection(ctx context.Context, feedID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.byFeed[feedID]
	if !ok || doc.OwnerUserID != ownerID {
		return ErrNotFound
	}
	delete(m.byFeed, feedID)
	return nil
}

func (m *memorySelections) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byFeed)
}

type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: make(map[string]Account)}
}

func (m *memoryAccounts) CreateUser(ctx context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return ErrAlreadyExists
		}
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *memoryAccounts) GetUser(ctx context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (m *memoryAccounts) GetUserByEmail(ctx context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if strings.EqualFold(account.Email, email) {
			return account, nil
		}
	}
	return Account{}, ErrNotFound
}

type memoryChallenges struct {
	mu         sync.Mutex
	challenges map[string]SignInChallenge
}

func newMemoryChallenges() *memoryChallenges {
	return &memoryChallenges{challenges: make(map[string]SignInChallenge)}
}

func (m *memoryChallenges) UpsertChallenge(ctx context.Context, challenge SignInChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[challenge.Identifier] = challenge
	return nil
}

func (m *memoryChallenges) GetChallenge(ctx context.Context, identifier string) (SignInChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[identifier]
	if !ok {
		return SignInChallenge{}, ErrNotFound
	}
	return challenge, nil
}

func (m *memoryChallenges) DeleteChallenge(ctx context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[identifier]; !ok {
		return ErrNotFound
	}
	delete(m.challenges, identifier)
	return nil
}

func (m *memoryChallenges) DeleteExpiredChallenges(ctx context.Context, reference time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, challenge := range m.challenges {
		if !challenge.ExpiresAt.After(reference) {
			delete(m.challenges, id)
			removed++
		}
	}
	return removed, nil
}

type capturingSender struct {
	mu    sync.Mutex
	links map[string]string
	err   error
}

func (c *capturingSender) SendSignInLink(ctx context.Context, email, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.links == nil {
		c.links = make(map[string]string)
	}
	c.links[email] = link
	return nil
}

func (c *capturingSender) linkFor(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[email]
}

type recordingObserver struct {
	mu         sync.Mutex
	operations []string
}

func (r *recordingObserver) ObserveSelectionMutation(operation string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, operation)
}
