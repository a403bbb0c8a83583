package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ReloadObserver is notified after every reload attempt.
type ReloadObserver interface {
	ObserveCatalogReload(sessions int, err error)
}

// Store serves the current snapshot and swaps it atomically on reload.
type Store struct {
	sessionsPath string
	speakersPath string
	now          func() time.Time
	logger       *slog.Logger
	observer     ReloadObserver

	reloadMu sync.Mutex
	current  atomic.Pointer[Snapshot]
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used to stamp snapshots.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for reload reporting.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers a reload observer.
func WithObserver(observer ReloadObserver) StoreOption {
	return func(s *Store) {
		s.observer = observer
	}
}

// NewStore constructs a store reading from the given files. The store starts
// with an empty snapshot until Reload succeeds.
func NewStore(sessionsPath, speakersPath string, opts ...StoreOption) *Store {
	s := &Store{
		sessionsPath: sessionsPath,
		speakersPath: speakersPath,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(NewSnapshot(nil, nil, time.Time{}))
	return s
}

// NewStaticStore wraps a fixed snapshot. Reload keeps the snapshot unchanged.
func NewStaticStore(snapshot *Snapshot) *Store {
	s := &Store{now: time.Now, logger: slog.Default()}
	if snapshot == nil {
		snapshot = NewSnapshot(nil, nil, time.Time{})
	}
	s.current.Store(snapshot)
	return s
}

// Snapshot returns the snapshot currently being served. It is never nil.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload re-reads the catalog files. On failure the previous snapshot stays
// in place.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.sessionsPath == "" && s.speakersPath == "" {
		return s.Snapshot(), nil
	}

	snapshot, err := s.load()
	if s.observer != nil {
		s.observer.ObserveCatalogReload(snapshot.Len(), err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "catalog reload failed", "error", err, "sessions_path", s.sessionsPath)
		return s.Snapshot(), err
	}

	s.current.Store(snapshot)
	s.logger.InfoContext(ctx, "catalog reloaded",
		"sessions", snapshot.Len(),
		"speakers", len(snapshot.speakers),
	)
	return snapshot, nil
}

func (s *Store) load() (*Snapshot, error) {
	sessions, err := LoadSessions(s.sessionsPath)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	speakers, err := LoadSpeakers(s.speakersPath)
	if err != nil {
		return nil, fmt.Errorf("load speakers: %w", err)
	}
	return NewSnapshot(sessions, speakers, s.now()), nil
}
