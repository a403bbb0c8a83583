package application

import (
	"time"

	"github.com/example/conference-companion/internal/catalog"
)

// Principal represents the authenticated attendee invoking a service method.
type Principal struct {
	UserID string
	Email  string
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// SelectionDocument is the per-attendee bookmark document. Its FeedID is the
// capability that addresses the public calendar feed.
type SelectionDocument struct {
	FeedID           string
	OwnerUserID      string
	SelectedEventIDs []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Account is an attendee account created on first sign-in.
type Account struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignInChallenge is the stored half of an emailed sign-in link.
type SignInChallenge struct {
	Identifier string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// SessionToken is the credential issued after a completed sign-in.
type SessionToken struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
	// NewAccount is true when the sign-in created the account.
	NewAccount bool
}

// SessionView annotates a catalog session for one caller.
type SessionView struct {
	Session   catalog.Session
	Selected  bool
	Conflicts []string
}

// ProvisionResult reports the outcome of EnsureProvisioned.
type ProvisionResult struct {
	Document SelectionDocument
	Created  bool
}
