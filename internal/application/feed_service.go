package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/conference-companion/internal/catalog"
)

// SelectionReader is the read side of SelectionRepository.
type SelectionReader interface {
	GetSelectionByFeedID(ctx context.Context, feedID string) (SelectionDocument, error)
	GetSelectionByOwner(ctx context.Context, ownerID string) (SelectionDocument, error)
}

// CatalogSource yields the catalog snapshot currently being served.
type CatalogSource interface {
	Snapshot() *catalog.Snapshot
}

// CalendarEncoder renders resolved sessions into a calendar document.
type CalendarEncoder interface {
	Encode(sessions []catalog.Session) ([]byte, error)
}

// RenderObserver receives the outcome of every feed render.
type RenderObserver interface {
	ObserveFeedRender(events int, cached bool, err error)
}

// FeedService renders the public calendar feed of a selection document.
type FeedService struct {
	selections SelectionReader
	catalog    CatalogSource
	encoder    CalendarEncoder
	cache      *renderCache
	logger     *slog.Logger
	observer   RenderObserver
}

// NewFeedService constructs a FeedService.
func NewFeedService(selections SelectionReader, source CatalogSource, encoder CalendarEncoder, now func() time.Time) *FeedService {
	return NewFeedServiceWithLogger(selections, source, encoder, now, nil)
}

// NewFeedServiceWithLogger constructs a FeedService with a specified logger.
func NewFeedServiceWithLogger(selections SelectionReader, source CatalogSource, encoder CalendarEncoder, now func() time.Time, logger *slog.Logger) *FeedService {
	return &FeedService{
		selections: selections,
		catalog:    source,
		encoder:    encoder,
		cache:      newRenderCache(0, 0, now),
		logger:     defaultLogger(logger),
	}
}

// SetObserver registers an observer for render outcomes.
func (s *FeedService) SetObserver(observer RenderObserver) {
	s.observer = observer
}

// Render resolves the document's selected ids against the current catalog
// and encodes them. Unknown ids are dropped; an empty resolution yields a
// calendar with no events. Encoding failures return no partial output.
func (s *FeedService) Render(ctx context.Context, feedID string) (body []byte, err error) {
	if s == nil || s.selections == nil || s.catalog == nil || s.encoder == nil {
		return nil, fmt.Errorf("feed service not configured")
	}

	feedID = strings.TrimSpace(feedID)
	var (
		events int
		cached bool
	)
	logger := serviceLogger(ctx, s.logger, "FeedService", "Render", "feed_id", feedID)
	defer func() {
		if s.observer != nil {
			s.observer.ObserveFeedRender(events, cached, err)
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				logger.WarnContext(ctx, "feed not found")
				return
			}
			logger.ErrorContext(ctx, "feed render failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("events", events, "cached", cached).DebugContext(ctx, "feed rendered")
	}()

	if feedID == "" {
		err = ErrNotFound
		return
	}

	var doc SelectionDocument
	doc, err = s.selections.GetSelectionByFeedID(ctx, feedID)
	if err != nil {
		return
	}

	snapshot := s.catalog.Snapshot()
	sessions := snapshot.Resolve(doc.SelectedEventIDs)
	events = len(sessions)

	key := renderKey(doc, snapshot)
	if hit, ok := s.cache.Get(key); ok {
		cached = true
		body = hit
		return
	}

	body, err = s.encoder.Encode(sessions)
	if err != nil {
		body = nil
		err = fmt.Errorf("encode calendar: %w", err)
		return
	}
	s.cache.Store(key, body)
	return
}

func renderKey(doc SelectionDocument, snapshot *catalog.Snapshot) string {
	return doc.FeedID + "|" +
		doc.UpdatedAt.UTC().Format(time.RFC3339Nano) + "|" +
		strings.Join(doc.SelectedEventIDs, ",") + "|" +
		snapshot.LoadedAt().UTC().Format(time.RFC3339Nano)
}
