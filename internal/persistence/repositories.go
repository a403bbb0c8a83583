package persistence

import (
	"context"
	"time"
)

// SelectionRepository stores selection documents keyed by feed id with a
// unique owner.
type SelectionRepository interface {
	// CreateSelection inserts a new document. It returns ErrDuplicate when the
	// owner or feed id already has a document.
	CreateSelection(ctx context.Context, selection Selection) error
	GetSelectionByFeedID(ctx context.Context, feedID string) (Selection, error)
	GetSelectionByOwner(ctx context.Context, ownerID string) (Selection, error)
	// ReplaceSelectedEvents overwrites the selection of the document identified
	// by feed id and owner.
	ReplaceSelectedEvents(ctx context.Context, feedID, ownerID string, eventIDs []string, updatedAt time.Time) error
	DeleteSelection(ctx context.Context, feedID, ownerID string) error
}

// UserRepository stores attendee accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// VerificationTokenRepository stores pending sign-in challenges, one per
// identifier.
type VerificationTokenRepository interface {
	UpsertVerificationToken(ctx context.Context, token VerificationToken) error
	GetVerificationToken(ctx context.Context, identifier string) (VerificationToken, error)
	DeleteVerificationToken(ctx context.Context, identifier string) error
	DeleteExpiredVerificationTokens(ctx context.Context, reference time.Time) (int64, error)
}
