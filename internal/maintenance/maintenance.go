// Package maintenance runs periodic background jobs on a robfig/cron scheduler.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job names.
const (
	JobCatalogReload  = "catalog_reload"
	JobChallengePurge = "challenge_purge"
)

const defaultJobTimeout = time.Minute

// RunObserver is notified after every job run.
type RunObserver interface {
	ObserveMaintenanceRun(job string, err error)
}

// CatalogReloader re-reads the session catalog.
type CatalogReloader interface {
	Reload(ctx context.Context) (int, error)
}

// ChallengePurger removes expired sign-in challenges.
type ChallengePurger interface {
	PurgeExpiredChallenges(ctx context.Context) (int64, error)
}

// Scheduler owns the cron instance and the registered jobs.
type Scheduler struct {
	cron     *cron.Cron
	logger   *slog.Logger
	observer RunObserver
	timeout  time.Duration

	mu  sync.Mutex
	ids map[string]cron.EntryID
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for job reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers a run observer.
func WithObserver(observer RunObserver) Option {
	return func(s *Scheduler) {
		s.observer = observer
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewScheduler returns a stopped scheduler using UTC and standard cron specs.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:  slog.Default(),
		timeout: defaultJobTimeout,
		ids:     make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return s
}

// Add installs or replaces the job called name. An empty schedule removes the
// job, which is how a schedule is disabled from configuration.
func (s *Scheduler) Add(name, spec string, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.ids[name]; ok {
		s.cron.Remove(id)
		delete(s.ids, name)
	}
	if spec == "" {
		s.logger.Info("maintenance job disabled", "job", name)
		return nil
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.ids[name] = id
	s.logger.Info("maintenance job scheduled", "job", name, "spec", spec)
	return nil
}

// Jobs returns the names of scheduled jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.ids))
	for name := range s.ids {
		names = append(names, name)
	}
	return names
}

// Next returns the next activation of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.ids[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if s.observer != nil {
		s.observer.ObserveMaintenanceRun(name, err)
	}
	if err != nil {
		s.logger.Error("maintenance job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("maintenance job finished", "job", name, "duration", time.Since(start))
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReloadCatalogJob wraps a catalog reload as a job function.
func ReloadCatalogJob(reloader CatalogReloader) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := reloader.Reload(ctx)
		return err
	}
}

// PurgeChallengesJob wraps the expired challenge purge as a job function.
func PurgeChallengesJob(purger ChallengePurger) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := purger.PurgeExpiredChallenges(ctx)
		return err
	}
}
