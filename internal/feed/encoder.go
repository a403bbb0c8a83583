// Package feed encodes bookmarked sessions as an iCalendar document.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/conference-companion/internal/catalog"
)

const (
	// DefaultCalendarName is the display name advertised to calendar clients.
	DefaultCalendarName = "My Conference Calendar"
	// DefaultProductID identifies the producer in the PRODID property.
	DefaultProductID = "-//conference-companion//Session Feed//EN"
	// DefaultUIDDomain qualifies event UIDs.
	DefaultUIDDomain = "conference-companion"
)

// ErrInvalidEvent is returned when a session cannot be represented as an event.
var ErrInvalidEvent = errors.New("feed: invalid event")

// Options configures the encoder.
type Options struct {
	CalendarName string
	ProductID    string
	UIDDomain    string
}

// Encoder renders sessions into calendar documents.
type Encoder struct {
	opts Options
}

// NewEncoder returns an encoder with defaults applied to empty options.
func NewEncoder(opts Options) *Encoder {
	if strings.TrimSpace(opts.CalendarName) == "" {
		opts.CalendarName = DefaultCalendarName
	}
	if strings.TrimSpace(opts.ProductID) == "" {
		opts.ProductID = DefaultProductID
	}
	if strings.TrimSpace(opts.UIDDomain) == "" {
		opts.UIDDomain = DefaultUIDDomain
	}
	return &Encoder{opts: opts}
}

// Encode renders the sessions in the order given. No sessions yields a valid
// calendar without events. Any invalid session fails the whole document.
func (e *Encoder) Encode(sessions []catalog.Session) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetProductId(e.opts.ProductID)
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(e.opts.CalendarName)

	for _, session := range sessions {
		if err := e.addEvent(cal, session); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) addEvent(cal *ics.Calendar, session catalog.Session) error {
	id := strings.TrimSpace(session.DocumentID)
	if id == "" {
		return fmt.Errorf("%w: session without document id", ErrInvalidEvent)
	}
	// Validate before truncation: a session inside one minute is still valid
	// and renders with equal start and end.
	if session.Start.IsZero() || !session.Start.Before(session.End) {
		return fmt.Errorf("%w: %s: start must be before end", ErrInvalidEvent, id)
	}
	start := minuteUTC(session.Start)
	end := minuteUTC(session.End)

	stamp := session.UpdatedAt
	if stamp.IsZero() {
		stamp = session.Start
	}

	event := cal.AddEvent(id + "@" + e.opts.UIDDomain)
	event.SetDtStampTime(stamp.UTC().Truncate(time.Second))
	event.SetStartAt(start)
	event.SetEndAt(end)
	event.SetSummary(session.Title)
	event.SetDescription(session.Description)
	if session.Room != "" {
		event.SetLocation(session.Room)
	}
	return nil
}

// minuteUTC drops seconds and sub-second precision after converting to UTC.
func minuteUTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// WebcalURL rewrites an http(s) feed URL into a webcal subscription link.
func WebcalURL(feedURL string) string {
	switch {
	case strings.HasPrefix(feedURL, "https://"):
		return "webcal://" + strings.TrimPrefix(feedURL, "https://")
	case strings.HasPrefix(feedURL, "http://"):
		return "webcal://" + strings.TrimPrefix(feedURL, "http://")
	default:
		return feedURL
	}
}
