package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// SelectionRepository persists selection documents. CreateSelection must
// return ErrAlreadyExists when the owner already has a document, and the
// read methods ErrNotFound when nothing matches.
type SelectionRepository interface {
	CreateSelection(ctx context.Context, doc SelectionDocument) error
	GetSelectionByFeedID(ctx context.Context, feedID string) (SelectionDocument, error)
	GetSelectionByOwner(ctx context.Context, ownerID string) (SelectionDocument, error)
	ReplaceSelectedEvents(ctx context.Context, feedID, ownerID string, eventIDs []string, updatedAt time.Time) error
	DeleteSelection(ctx context.Context, feedID, ownerID string) error
}

// MutationObserver receives the outcome of every selection write.
type MutationObserver interface {
	ObserveSelectionMutation(operation string, err error)
}

// SelectionService owns the server side of selection synchronisation:
// exactly-once provisioning per owner and owner-checked writes.
type SelectionService struct {
	selections  SelectionRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	observer    MutationObserver
	inflight    singleflight.Group
}

// NewSelectionService constructs a SelectionService.
func NewSelectionService(selections SelectionRepository, idGenerator func() string, now func() time.Time) *SelectionService {
	return NewSelectionServiceWithLogger(selections, idGenerator, now, nil)
}

// NewSelectionServiceWithLogger constructs a SelectionService with a specified logger.
func NewSelectionServiceWithLogger(selections SelectionRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SelectionService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &SelectionService{
		selections:  selections,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// SetObserver registers an observer for write outcomes.
func (s *SelectionService) SetObserver(observer MutationObserver) {
	s.observer = observer
}

func (s *SelectionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SelectionService", operation, attrs...)
}

func (s *SelectionService) observe(operation string, err error) {
	if s.observer != nil {
		s.observer.ObserveSelectionMutation(operation, err)
	}
}

// Load returns the principal's document.
func (s *SelectionService) Load(ctx context.Context, principal Principal) (SelectionDocument, error) {
	if s == nil || s.selections == nil {
		return SelectionDocument{}, fmt.Errorf("selection repository not configured")
	}
	if !principal.Authenticated() {
		return SelectionDocument{}, ErrUnauthorized
	}
	doc, err := s.selections.GetSelectionByOwner(ctx, principal.UserID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.loggerWith(ctx, "Load", "principal_id", principal.UserID).
				ErrorContext(ctx, "failed to load selection", "error", err, "error_kind", ErrorKind(err))
		}
		return SelectionDocument{}, err
	}
	return doc, nil
}

// EnsureProvisioned returns the principal's document, creating it with
// initial as its selection when it does not exist yet. created is true only
// for the call that inserted the document. Concurrent calls for one owner in
// this process share a single store round trip; across processes the unique
// owner index decides the winner and losers re-read it.
func (s *SelectionService) EnsureProvisioned(ctx context.Context, principal Principal, initial []string) (doc SelectionDocument, created bool, err error) {
	if s == nil || s.selections == nil {
		err = fmt.Errorf("selection repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "EnsureProvisioned", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "provisioning failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("feed_id", doc.FeedID, "created", created).InfoContext(ctx, "selection provisioned")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	ids := NormalizeEventIDs(initial)
	leader := false
	// The shared round trip must outlive the caller that started it; each
	// caller still stops waiting when its own context ends.
	flight := s.inflight.DoChan(principal.UserID, func() (any, error) {
		leader = true
		return s.provision(context.WithoutCancel(ctx), principal.UserID, ids)
	})
	var shared singleflight.Result
	select {
	case shared = <-flight:
	case <-ctx.Done():
		err = ctx.Err()
		return
	}
	if err = shared.Err; err != nil {
		return
	}
	result := shared.Val.(ProvisionResult)
	doc = cloneDocument(result.Document)
	created = result.Created && leader
	if leader {
		s.observe("provision", nil)
	}
	return
}

func (s *SelectionService) provision(ctx context.Context, ownerID string, ids []string) (ProvisionResult, error) {
	existing, err := s.selections.GetSelectionByOwner(ctx, ownerID)
	if err == nil {
		return ProvisionResult{Document: existing}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ProvisionResult{}, err
	}

	now := s.now().UTC()
	doc := SelectionDocument{
		FeedID:           s.idGenerator(),
		OwnerUserID:      ownerID,
		SelectedEventIDs: ids,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.selections.CreateSelection(ctx, doc)
	switch {
	case err == nil:
		return ProvisionResult{Document: doc, Created: true}, nil
	case errors.Is(err, ErrAlreadyExists):
		winner, readErr := s.selections.GetSelectionByOwner(ctx, ownerID)
		if readErr != nil {
			return ProvisionResult{}, fmt.Errorf("read provisioning winner: %w", readErr)
		}
		return ProvisionResult{Document: winner}, nil
	default:
		return ProvisionResult{}, err
	}
}

// ReplaceAll overwrites the selection of the document addressed by feedID.
func (s *SelectionService) ReplaceAll(ctx context.Context, principal Principal, feedID string, ids []string) (doc SelectionDocument, err error) {
	if s == nil || s.selections == nil {
		err = fmt.Errorf("selection repository not configured")
		return
	}

	feedID = strings.TrimSpace(feedID)
	logger := s.loggerWith(ctx, "ReplaceAll", "principal_id", principal.UserID, "feed_id", feedID)
	defer func() {
		s.observe("replace", err)
		if err != nil {
			logger.ErrorContext(ctx, "selection replace failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("selected", len(doc.SelectedEventIDs)).InfoContext(ctx, "selection replaced")
	}()

	doc, err = s.ownedDocument(ctx, principal, feedID)
	if err != nil {
		return
	}

	doc.SelectedEventIDs = NormalizeEventIDs(ids)
	doc.UpdatedAt = s.now().UTC()
	err = s.selections.ReplaceSelectedEvents(ctx, doc.FeedID, doc.OwnerUserID, doc.SelectedEventIDs, doc.UpdatedAt)
	return
}

// Remove deletes the document addressed by feedID.
func (s *SelectionService) Remove(ctx context.Context, principal Principal, feedID string) (err error) {
	if s == nil || s.selections == nil {
		return fmt.Errorf("selection repository not configured")
	}

	feedID = strings.TrimSpace(feedID)
	logger := s.loggerWith(ctx, "Remove", "principal_id", principal.UserID, "feed_id", feedID)
	defer func() {
		s.observe("remove", err)
		if err != nil {
			logger.ErrorContext(ctx, "selection removal failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "selection removed")
	}()

	doc, err := s.ownedDocument(ctx, principal, feedID)
	if err != nil {
		return err
	}
	return s.selections.DeleteSelection(ctx, doc.FeedID, doc.OwnerUserID)
}

// Save stores ids as the principal's selection, provisioning the document
// when needed. At least one id is required.
func (s *SelectionService) Save(ctx context.Context, principal Principal, ids []string) (SelectionDocument, error) {
	if !principal.Authenticated() {
		return SelectionDocument{}, ErrUnauthorized
	}
	normalized := NormalizeEventIDs(ids)
	if len(normalized) == 0 {
		return SelectionDocument{}, newValidationError("selectedEventIds", "select at least one session")
	}

	doc, created, err := s.EnsureProvisioned(ctx, principal, normalized)
	if err != nil {
		return SelectionDocument{}, err
	}
	if created {
		return doc, nil
	}
	return s.ReplaceAll(ctx, principal, doc.FeedID, normalized)
}

func (s *SelectionService) ownedDocument(ctx context.Context, principal Principal, feedID string) (SelectionDocument, error) {
	if !principal.Authenticated() {
		return SelectionDocument{}, ErrUnauthorized
	}
	if feedID == "" {
		return SelectionDocument{}, newValidationError("feedId", "feed id is required")
	}
	doc, err := s.selections.GetSelectionByFeedID(ctx, feedID)
	if err != nil {
		return SelectionDocument{}, err
	}
	if doc.OwnerUserID != principal.UserID {
		return SelectionDocument{}, ErrForbidden
	}
	return doc, nil
}

// NormalizeEventIDs trims ids, drops empty ones and removes duplicates
// keeping the first occurrence. The result is never nil.
func NormalizeEventIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cloneDocument(doc SelectionDocument) SelectionDocument {
	clone := doc
	clone.SelectedEventIDs = append([]string{}, doc.SelectedEventIDs...)
	return clone
}
