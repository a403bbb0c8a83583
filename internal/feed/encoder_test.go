package feed

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/conference-companion/internal/catalog"
)

func scenarioSessions() []catalog.Session {
	return []catalog.Session{
		{
			DocumentID:  "s1",
			Title:       "Keynote",
			Start:       time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC),
			End:         time.Date(2025, 8, 14, 11, 0, 0, 0, time.UTC),
			Room:        "Stage 1",
			Description: "Opening words",
		},
		{
			DocumentID: "s2",
			Title:      "Workshop",
			Start:      time.Date(2025, 8, 14, 12, 30, 45, 0, time.FixedZone("CEST", 2*3600)),
			End:        time.Date(2025, 8, 14, 13, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
		},
	}
}

func parse(t *testing.T, doc []byte) *ics.Calendar {
	t.Helper()
	cal, err := ics.ParseCalendar(bytes.NewReader(doc))
	require.NoError(t, err)
	return cal
}

func calendarProperty(cal *ics.Calendar, name string) string {
	for _, prop := range cal.CalendarProperties {
		if prop.IANAToken == name {
			return prop.Value
		}
	}
	return ""
}

func TestEncoder_Encode(t *testing.T) {
	enc := NewEncoder(Options{UIDDomain: "example.test"})

	t.Run("emits one UTC event per session", func(t *testing.T) {
		doc, err := enc.Encode(scenarioSessions())
		require.NoError(t, err)

		cal := parse(t, doc)
		events := cal.Events()
		require.Len(t, events, 2)

		assert.Equal(t, "s1@example.test", events[0].Id())
		assert.Equal(t, "Keynote", events[0].GetProperty(ics.ComponentPropertySummary).Value)
		assert.Equal(t, "20250814T100000Z", events[0].GetProperty(ics.ComponentPropertyDtStart).Value)
		assert.Equal(t, "20250814T110000Z", events[0].GetProperty(ics.ComponentPropertyDtEnd).Value)
		assert.Equal(t, "Stage 1", events[0].GetProperty(ics.ComponentPropertyLocation).Value)

		assert.Equal(t, "20250814T103000Z", events[1].GetProperty(ics.ComponentPropertyDtStart).Value)
		assert.Equal(t, "20250814T113000Z", events[1].GetProperty(ics.ComponentPropertyDtEnd).Value)
		assert.Contains(t, string(doc), "DESCRIPTION:\r\n")

		assert.Equal(t, DefaultCalendarName, calendarProperty(cal, "X-WR-CALNAME"))
	})

	t.Run("output is byte identical across renders", func(t *testing.T) {
		first, err := enc.Encode(scenarioSessions())
		require.NoError(t, err)
		second, err := enc.Encode(scenarioSessions())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("empty input is a parseable calendar without events", func(t *testing.T) {
		doc, err := enc.Encode(nil)
		require.NoError(t, err)
		text := string(doc)
		assert.True(t, strings.HasPrefix(text, "BEGIN:VCALENDAR"))
		assert.Contains(t, text, "VERSION:2.0")
		assert.Contains(t, text, "END:VCALENDAR")
		assert.Empty(t, parse(t, doc).Events())
	})

	t.Run("a session within one minute still renders", func(t *testing.T) {
		brief := catalog.Session{
			DocumentID: "s9",
			Title:      "Lightning intro",
			Start:      time.Date(2025, 8, 14, 9, 15, 10, 0, time.UTC),
			End:        time.Date(2025, 8, 14, 9, 15, 40, 0, time.UTC),
		}
		doc, err := enc.Encode([]catalog.Session{brief})
		require.NoError(t, err)

		events := parse(t, doc).Events()
		require.Len(t, events, 1)
		assert.Equal(t, "20250814T091500Z", events[0].GetProperty(ics.ComponentPropertyDtStart).Value)
		assert.Equal(t, "20250814T091500Z", events[0].GetProperty(ics.ComponentPropertyDtEnd).Value)
	})

	t.Run("invalid session fails the whole document", func(t *testing.T) {
		sessions := scenarioSessions()
		sessions[1].End = sessions[1].Start
		doc, err := enc.Encode(sessions)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidEvent))
		assert.Nil(t, doc)
	})
}

func TestWebcalURL(t *testing.T) {
	assert.Equal(t, "webcal://example.test/api/calendar/abc", WebcalURL("https://example.test/api/calendar/abc"))
	assert.Equal(t, "webcal://localhost:8080/api/calendar/abc", WebcalURL("http://localhost:8080/api/calendar/abc"))
	assert.Equal(t, "ftp://x", WebcalURL("ftp://x"))
}
