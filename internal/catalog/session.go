// Package catalog holds the read-only conference programme: sessions and
// speakers loaded from files that are refreshed out-of-band.
package catalog

import (
	"slices"
	"strings"
	"time"
)

// Tracks lists the programme tracks published by the organisers.
var Tracks = []string{
	"Application",
	"Ecosystem",
	"Education",
	"Research",
	"Regulation",
	"Workshop",
	"TBC'25",
	"Academic Forum",
}

// Stages lists the venue rooms sessions are held in.
var Stages = []string{
	"Stage 1",
	"Stage 2",
	"Stage 3",
	"Workshop Room",
	"Gern",
	"Lab Lounge",
}

// Session is one scheduled programme item.
type Session struct {
	ID               int
	DocumentID       string
	Title            string
	Track            string
	Type             string
	Start            time.Time
	End              time.Time
	Room             string
	Description      string
	Speakers         map[string]string
	IsSpecialSession bool
	RegistrationLink string
	UpdatedAt        time.Time
}

// Overlaps reports whether the half-open intervals of s and other intersect.
// Sessions that only touch at an endpoint do not overlap.
func (s Session) Overlaps(other Session) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// SpeakerNames returns the speaker names in a stable order. Role keys carry no
// positional meaning so the names are ordered by role key.
func (s Session) SpeakerNames() []string {
	if len(s.Speakers) == 0 {
		return nil
	}
	roles := make([]string, 0, len(s.Speakers))
	for role := range s.Speakers {
		roles = append(roles, role)
	}
	slices.Sort(roles)

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		if name := strings.TrimSpace(s.Speakers[role]); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// KnownRoom reports whether the room is one of the published stages.
func (s Session) KnownRoom() bool {
	return contains(Stages, s.Room)
}

// KnownTrack reports whether the track is empty or one of the published tracks.
func (s Session) KnownTrack() bool {
	return s.Track == "" || contains(Tracks, s.Track)
}

// Speaker holds presentation metadata for a person on the programme.
type Speaker struct {
	DocumentID  string
	Name        string
	CompanyName string
	Position    string
	URL         string
	Priority    int
	PhotoURL    string
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
