package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSession is wrapped by loader errors caused by a malformed record.
var ErrInvalidSession = errors.New("catalog: invalid session")

type sessionRecord struct {
	ID               int               `json:"id" yaml:"id"`
	DocumentID       string            `json:"documentId" yaml:"documentId"`
	Title            string            `json:"title" yaml:"title"`
	Track            *string           `json:"track" yaml:"track"`
	Type             *string           `json:"type" yaml:"type"`
	StartTime        string            `json:"startTime" yaml:"startTime"`
	EndTime          string            `json:"endTime" yaml:"endTime"`
	Room             string            `json:"room" yaml:"room"`
	Description      *string           `json:"description" yaml:"description"`
	Speakers         map[string]string `json:"speakers" yaml:"speakers"`
	IsSpecialSession *bool             `json:"isSpecialSession" yaml:"isSpecialSession"`
	RegistrationLink *string           `json:"registrationLink" yaml:"registrationLink"`
	UpdatedAt        string            `json:"updatedAt" yaml:"updatedAt"`
}

type imageFormat struct {
	URL string `json:"url" yaml:"url"`
}

type photoRecord struct {
	URL     string                 `json:"url" yaml:"url"`
	Formats map[string]imageFormat `json:"formats" yaml:"formats"`
}

type speakerRecord struct {
	DocumentID   string       `json:"documentId" yaml:"documentId"`
	Name         string       `json:"name" yaml:"name"`
	CompanyName  string       `json:"company_name" yaml:"company_name"`
	Position     string       `json:"position" yaml:"position"`
	URL          string       `json:"url" yaml:"url"`
	Priority     int          `json:"priority" yaml:"priority"`
	ProfilePhoto *photoRecord `json:"profile_photo" yaml:"profile_photo"`
}

// LoadSessions reads a session list from a JSON or YAML file. A missing file
// yields an empty list.
func LoadSessions(path string) ([]Session, error) {
	var records []sessionRecord
	found, err := decodeFile(path, &records)
	if err != nil || !found {
		return nil, err
	}

	sessions := make([]Session, 0, len(records))
	for i, record := range records {
		session, err := record.toSession()
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// LoadSpeakers reads a speaker list from a JSON or YAML file. A missing file
// yields an empty list.
func LoadSpeakers(path string) ([]Speaker, error) {
	var records []speakerRecord
	found, err := decodeFile(path, &records)
	if err != nil || !found {
		return nil, err
	}

	speakers := make([]Speaker, 0, len(records))
	for _, record := range records {
		if strings.TrimSpace(record.Name) == "" {
			continue
		}
		speakers = append(speakers, record.toSpeaker())
	}
	return speakers, nil
}

func decodeFile(path string, out any) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read catalog file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		return false, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	return true, nil
}

func (r sessionRecord) toSession() (Session, error) {
	id := strings.TrimSpace(r.DocumentID)
	if id == "" {
		return Session{}, fmt.Errorf("%w: documentId is required", ErrInvalidSession)
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(r.StartTime))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %s: startTime: %v", ErrInvalidSession, id, err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(r.EndTime))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %s: endTime: %v", ErrInvalidSession, id, err)
	}
	if !start.Before(end) {
		return Session{}, fmt.Errorf("%w: %s: startTime must be before endTime", ErrInvalidSession, id)
	}

	session := Session{
		ID:               r.ID,
		DocumentID:       id,
		Title:            r.Title,
		Track:            deref(r.Track),
		Type:             deref(r.Type),
		Start:            start.UTC(),
		End:              end.UTC(),
		Room:             r.Room,
		Description:      deref(r.Description),
		IsSpecialSession: r.IsSpecialSession != nil && *r.IsSpecialSession,
		RegistrationLink: deref(r.RegistrationLink),
	}
	if len(r.Speakers) > 0 {
		session.Speakers = make(map[string]string, len(r.Speakers))
		for role, name := range r.Speakers {
			session.Speakers[role] = name
		}
	}
	if updated, err := time.Parse(time.RFC3339, strings.TrimSpace(r.UpdatedAt)); err == nil {
		session.UpdatedAt = updated.UTC()
	}
	return session, nil
}

func (r speakerRecord) toSpeaker() Speaker {
	speaker := Speaker{
		DocumentID:  r.DocumentID,
		Name:        strings.TrimSpace(r.Name),
		CompanyName: r.CompanyName,
		Position:    r.Position,
		URL:         r.URL,
		Priority:    r.Priority,
	}
	if photo := r.ProfilePhoto; photo != nil {
		switch {
		case photo.URL != "":
			speaker.PhotoURL = photo.URL
		case photo.Formats["thumbnail"].URL != "":
			speaker.PhotoURL = photo.Formats["thumbnail"].URL
		default:
			speaker.PhotoURL = photo.Formats["small"].URL
		}
	}
	return speaker
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
