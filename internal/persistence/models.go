package persistence

import "time"

// Selection is the persisted bookmark document of one attendee.
type Selection struct {
	FeedID           string
	OwnerID          string
	SelectedEventIDs []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// User represents an attendee account created on first sign-in.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerificationToken is an outstanding email sign-in challenge. Only a digest
// of the token delivered by email is stored.
type VerificationToken struct {
	Identifier string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
