package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/persistence"
)

// mapError translates persistence sentinels into application sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return application.ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return application.ErrAlreadyExists
	}
	return err
}

// SelectionStore adapts a persistence.SelectionRepository.
type SelectionStore struct {
	repo persistence.SelectionRepository
}

// NewSelectionStore wraps repo.
func NewSelectionStore(repo persistence.SelectionRepository) *SelectionStore {
	return &SelectionStore{repo: repo}
}

func (s *SelectionStore) CreateSelection(ctx context.Context, doc application.SelectionDocument) error {
	return mapError(s.repo.CreateSelection(ctx, toPersistenceSelection(doc)))
}

func (s *SelectionStore) GetSelectionByFeedID(ctx context.Context, feedID string) (application.SelectionDocument, error) {
	stored, err := s.repo.GetSelectionByFeedID(ctx, feedID)
	if err != nil {
		return application.SelectionDocument{}, mapError(err)
	}
	return toApplicationSelection(stored), nil
}

func (s *SelectionStore) GetSelectionByOwner(ctx context.Context, ownerID string) (application.SelectionDocument, error) {
	stored, err := s.repo.GetSelectionByOwner(ctx, ownerID)
	if err != nil {
		return application.SelectionDocument{}, mapError(err)
	}
	return toApplicationSelection(stored), nil
}

func (s *SelectionStore) ReplaceSelectedEvents(ctx context.Context, feedID, ownerID string, ids []string, updatedAt time.Time) error {
	return mapError(s.repo.ReplaceSelectedEvents(ctx, feedID, ownerID, ids, updatedAt))
}

func (s *SelectionStore) DeleteSelection(ctx context.Context, feedID, ownerID string) error {
	return mapError(s.repo.DeleteSelection(ctx, feedID, ownerID))
}

// AccountStore adapts a persistence.UserRepository.
type AccountStore struct {
	repo persistence.UserRepository
}

// NewAccountStore wraps repo.
func NewAccountStore(repo persistence.UserRepository) *AccountStore {
	return &AccountStore{repo: repo}
}

func (s *AccountStore) CreateUser(ctx context.Context, account application.Account) error {
	return mapError(s.repo.CreateUser(ctx, persistence.User{
		ID:        account.ID,
		Email:     account.Email,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}))
}

func (s *AccountStore) GetUser(ctx context.Context, id string) (application.Account, error) {
	stored, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return application.Account{}, mapError(err)
	}
	return toApplicationAccount(stored), nil
}

func (s *AccountStore) GetUserByEmail(ctx context.Context, email string) (application.Account, error) {
	stored, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.Account{}, mapError(err)
	}
	return toApplicationAccount(stored), nil
}

// ChallengeStore adapts a persistence.VerificationTokenRepository.
type ChallengeStore struct {
	repo persistence.VerificationTokenRepository
}

// NewChallengeStore wraps repo.
func NewChallengeStore(repo persistence.VerificationTokenRepository) *ChallengeStore {
	return &ChallengeStore{repo: repo}
}

func (s *ChallengeStore) UpsertChallenge(ctx context.Context, challenge application.SignInChallenge) error {
	return mapError(s.repo.UpsertVerificationToken(ctx, persistence.VerificationToken{
		Identifier: challenge.Identifier,
		TokenHash:  challenge.TokenHash,
		ExpiresAt:  challenge.ExpiresAt,
		CreatedAt:  challenge.CreatedAt,
	}))
}

func (s *ChallengeStore) GetChallenge(ctx context.Context, identifier string) (application.SignInChallenge, error) {
	stored, err := s.repo.GetVerificationToken(ctx, identifier)
	if err != nil {
		return application.SignInChallenge{}, mapError(err)
	}
	return application.SignInChallenge{
		Identifier: stored.Identifier,
		TokenHash:  stored.TokenHash,
		ExpiresAt:  stored.ExpiresAt,
		CreatedAt:  stored.CreatedAt,
	}, nil
}

func (s *ChallengeStore) DeleteChallenge(ctx context.Context, identifier string) error {
	return mapError(s.repo.DeleteVerificationToken(ctx, identifier))
}

func (s *ChallengeStore) DeleteExpiredChallenges(ctx context.Context, reference time.Time) (int64, error) {
	removed, err := s.repo.DeleteExpiredVerificationTokens(ctx, reference)
	return removed, mapError(err)
}

func toPersistenceSelection(doc application.SelectionDocument) persistence.Selection {
	return persistence.Selection{
		FeedID:           doc.FeedID,
		OwnerID:          doc.OwnerUserID,
		SelectedEventIDs: append([]string{}, doc.SelectedEventIDs...),
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

func toApplicationSelection(model persistence.Selection) application.SelectionDocument {
	return application.SelectionDocument{
		FeedID:           model.FeedID,
		OwnerUserID:      model.OwnerID,
		SelectedEventIDs: append([]string{}, model.SelectedEventIDs...),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toApplicationAccount(model persistence.User) application.Account {
	return application.Account{
		ID:        model.ID,
		Email:     model.Email,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
