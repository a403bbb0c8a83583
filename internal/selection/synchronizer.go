// Package selection keeps a client-side mirror of an attendee's selection
// document and reconciles optimistic toggles with the server.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrPending is returned when a toggle targets an id whose previous toggle
// has not been acknowledged yet.
var ErrPending = errors.New("selection: toggle already pending for this session")

// State is the reconciliation state of one session id.
type State int

const (
	Idle State = iota
	Pending
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Document is the server copy of the selection.
type Document struct {
	FeedID           string
	SelectedEventIDs []string
}

// Backend persists the selection document. Create must be idempotent per
// attendee: when a document already exists it returns that document
// unchanged.
type Backend interface {
	Fetch(ctx context.Context) (Document, bool, error)
	Create(ctx context.Context, ids []string) (Document, error)
	Update(ctx context.Context, feedID string, ids []string) error
}

// Snapshot is a point-in-time copy of the local state.
type Snapshot struct {
	FeedID   string
	Selected []string
	Pending  []string
	States   map[string]State
}

// Synchronizer mirrors one attendee's selection. It is safe for concurrent
// use; writes to the backend are serialized so the last set sent always
// reflects the latest local intent.
type Synchronizer struct {
	backend Backend
	logger  *slog.Logger

	mu       sync.Mutex
	feedID   string
	selected []string
	states   map[string]State
	// confirmed is the selection last acknowledged by the backend.
	confirmed []string

	writeMu     sync.Mutex
	provisioned bool
}

// New constructs a Synchronizer with an empty selection.
func New(backend Backend, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		backend: backend,
		logger:  logger.With("component", "selection"),
		states:  make(map[string]State),
	}
}

// Load replaces the local state with the server document.
func (s *Synchronizer) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc, found, err := s.backend.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch selection: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]State)
	if !found {
		s.feedID = ""
		s.selected = nil
		s.confirmed = nil
		return nil
	}
	s.feedID = doc.FeedID
	s.selected = dedupe(doc.SelectedEventIDs)
	s.confirmed = slices.Clone(s.selected)
	for _, id := range s.selected {
		s.states[id] = Idle
	}
	return nil
}

// EnsureProvisioned makes sure the server document exists and returns its
// feed id. Only the first successful call talks to the backend.
func (s *Synchronizer) EnsureProvisioned(ctx context.Context) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.provisioned {
		return s.FeedID(), nil
	}

	if feedID := s.FeedID(); feedID != "" {
		s.provisioned = true
		return feedID, nil
	}

	doc, found, err := s.backend.Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch selection: %w", err)
	}
	if !found {
		doc, err = s.backend.Create(ctx, s.currentIDs())
		if err != nil {
			return "", fmt.Errorf("create selection: %w", err)
		}
		s.logger.InfoContext(ctx, "selection provisioned", "feed_id", doc.FeedID)
	}

	s.mu.Lock()
	s.feedID = doc.FeedID
	s.confirmed = dedupe(doc.SelectedEventIDs)
	s.mu.Unlock()
	s.provisioned = true
	return doc.FeedID, nil
}

// Toggle flips id locally and persists the resulting selection. Every write
// carries the whole local selection, so another toggle's write may already
// have persisted id. When the write for id fails, id follows the last
// acknowledged server selection: if that already holds the toggled value the
// toggle counts as committed, otherwise only id is reverted.
func (s *Synchronizer) Toggle(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.states[id] == Pending {
		s.mu.Unlock()
		return ErrPending
	}
	index := slices.Index(s.selected, id)
	adding := index < 0
	if adding {
		s.selected = append(s.selected, id)
	} else {
		s.selected = slices.Delete(s.selected, index, index+1)
	}
	s.states[id] = Pending
	s.mu.Unlock()

	err := s.persist(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if slices.Contains(s.confirmed, id) == adding {
			s.states[id] = Committed
			s.logger.InfoContext(ctx, "selection write failed but an earlier write persisted the toggle", "event_id", id, "error", err)
			return nil
		}
		s.revertLocked(id, adding, index)
		s.states[id] = RolledBack
		s.logger.WarnContext(ctx, "selection toggle rolled back", "event_id", id, "error", err)
		return err
	}
	s.states[id] = Committed
	return nil
}

func (s *Synchronizer) persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ids := s.currentIDs()
	feedID := s.FeedID()
	if feedID != "" {
		if err := s.backend.Update(ctx, feedID, ids); err != nil {
			return fmt.Errorf("update selection: %w", err)
		}
		s.confirm(ids)
		return nil
	}

	doc, err := s.backend.Create(ctx, ids)
	if err != nil {
		return fmt.Errorf("create selection: %w", err)
	}
	s.mu.Lock()
	s.feedID = doc.FeedID
	s.confirmed = dedupe(doc.SelectedEventIDs)
	s.mu.Unlock()
	s.provisioned = true

	// An existing document keeps its own selection; overwrite it with ours.
	if !slices.Equal(doc.SelectedEventIDs, ids) {
		if err := s.backend.Update(ctx, doc.FeedID, ids); err != nil {
			return fmt.Errorf("update selection: %w", err)
		}
		s.confirm(ids)
	}
	return nil
}

func (s *Synchronizer) confirm(ids []string) {
	s.mu.Lock()
	s.confirmed = slices.Clone(ids)
	s.mu.Unlock()
}

func (s *Synchronizer) revertLocked(id string, wasAdded bool, index int) {
	current := slices.Index(s.selected, id)
	if wasAdded {
		if current >= 0 {
			s.selected = slices.Delete(s.selected, current, current+1)
		}
		return
	}
	if current >= 0 {
		return
	}
	if index > len(s.selected) {
		index = len(s.selected)
	}
	s.selected = slices.Insert(s.selected, index, id)
}

// FeedID returns the known feed id, empty before provisioning.
func (s *Synchronizer) FeedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedID
}

// IsSelected reports whether id is in the local selection.
func (s *Synchronizer) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.selected, id)
}

// State returns the reconciliation state of id.
func (s *Synchronizer) State(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id]
}

// Snapshot copies the local state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		FeedID:   s.feedID,
		Selected: slices.Clone(s.selected),
		States:   make(map[string]State, len(s.states)),
	}
	for id, state := range s.states {
		snap.States[id] = state
		if state == Pending {
			snap.Pending = append(snap.Pending, id)
		}
	}
	slices.Sort(snap.Pending)
	return snap
}

func (s *Synchronizer) currentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Clone(s.selected)
	if ids == nil {
		ids = []string{}
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
