package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/conference-companion/internal/catalog"
	"github.com/example/conference-companion/internal/scheduler"
)

// CatalogReloader re-reads the catalog source.
type CatalogReloader interface {
	Reload(ctx context.Context) (*catalog.Snapshot, error)
}

// CatalogService serves the session catalog annotated for the caller.
type CatalogService struct {
	catalog    CatalogSource
	reloader   CatalogReloader
	selections SelectionReader
	logger     *slog.Logger
}

// NewCatalogService constructs a CatalogService. reloader may be nil when
// the catalog is static.
func NewCatalogService(source CatalogSource, reloader CatalogReloader, selections SelectionReader) *CatalogService {
	return NewCatalogServiceWithLogger(source, reloader, selections, nil)
}

// NewCatalogServiceWithLogger constructs a CatalogService with a specified logger.
func NewCatalogServiceWithLogger(source CatalogSource, reloader CatalogReloader, selections SelectionReader, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		catalog:    source,
		reloader:   reloader,
		selections: selections,
		logger:     defaultLogger(logger),
	}
}

// ListSessions returns the catalog, narrowed by query when it is not blank.
// For an authenticated principal each session carries its selected flag and
// the titles of other selected sessions it overlaps.
func (s *CatalogService) ListSessions(ctx context.Context, principal Principal, query string) ([]SessionView, error) {
	if s == nil || s.catalog == nil {
		return nil, fmt.Errorf("catalog not configured")
	}

	snapshot := s.catalog.Snapshot()
	sessions := snapshot.Search(query)

	var selection []string
	if principal.Authenticated() && s.selections != nil {
		doc, err := s.selections.GetSelectionByOwner(ctx, principal.UserID)
		switch {
		case err == nil:
			selection = doc.SelectedEventIDs
		case errors.Is(err, ErrNotFound):
		default:
			serviceLogger(ctx, s.logger, "CatalogService", "ListSessions", "principal_id", principal.UserID).
				ErrorContext(ctx, "failed to load selection", "error", err, "error_kind", ErrorKind(err))
			return nil, err
		}
	}

	selected := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		selected[id] = struct{}{}
	}

	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		view := SessionView{Session: session}
		if _, ok := selected[session.DocumentID]; ok {
			view.Selected = true
		}
		if len(selection) > 0 {
			view.Conflicts = scheduler.ConflictsFor(session, selection, snapshot)
		}
		views = append(views, view)
	}
	return views, nil
}

// ListSpeakers returns the speaker catalog.
func (s *CatalogService) ListSpeakers(ctx context.Context) []catalog.Speaker {
	if s == nil || s.catalog == nil {
		return nil
	}
	return s.catalog.Snapshot().Speakers()
}

// Reload re-reads the catalog source and returns the number of sessions now
// being served.
func (s *CatalogService) Reload(ctx context.Context) (sessions int, err error) {
	if s == nil || s.reloader == nil {
		return 0, fmt.Errorf("catalog reload not configured")
	}
	logger := serviceLogger(ctx, s.logger, "CatalogService", "Reload")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "catalog reload failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "catalog reload requested", "sessions", sessions)
	}()

	snapshot, err := s.reloader.Reload(ctx)
	if err != nil {
		return 0, err
	}
	return snapshot.Len(), nil
}
