package maintenance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *recordingObserver) ObserveMaintenanceRun(job string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = make(map[string][]error)
	}
	o.runs[job] = append(o.runs[job], err)
}

type stubReloader struct {
	calls int
	err   error
}

func (s *stubReloader) Reload(context.Context) (int, error) {
	s.calls++
	return 3, s.err
}

type stubPurger struct{ calls int }

func (s *stubPurger) PurgeExpiredChallenges(context.Context) (int64, error) {
	s.calls++
	return 1, nil
}

func TestSchedulerAdd(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(JobCatalogReload, "@every 15m", noop))
	require.NoError(t, s.Add(JobChallengePurge, "0 * * * *", noop))

	jobs := s.Jobs()
	sort.Strings(jobs)
	assert.Equal(t, []string{JobCatalogReload, JobChallengePurge}, jobs)

	_, ok := s.Next(JobCatalogReload)
	assert.True(t, ok)

	t.Run("rejects an invalid schedule", func(t *testing.T) {
		err := s.Add("broken", "sometimes", noop)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("empty schedule disables the job", func(t *testing.T) {
		require.NoError(t, s.Add(JobCatalogReload, "", noop))
		_, ok := s.Next(JobCatalogReload)
		assert.False(t, ok)
		assert.Equal(t, []string{JobChallengePurge}, s.Jobs())
	})
}

func TestSchedulerRunReportsOutcome(t *testing.T) {
	observer := &recordingObserver{}
	s := NewScheduler(WithObserver(observer), WithJobTimeout(time.Second))

	reloader := &stubReloader{err: errors.New("bad catalog")}
	purger := &stubPurger{}

	s.run(JobCatalogReload, ReloadCatalogJob(reloader))
	s.run(JobChallengePurge, PurgeChallengesJob(purger))

	assert.Equal(t, 1, reloader.calls)
	assert.Equal(t, 1, purger.calls)
	require.Len(t, observer.runs[JobCatalogReload], 1)
	assert.EqualError(t, observer.runs[JobCatalogReload][0], "bad catalog")
	require.Len(t, observer.runs[JobChallengePurge], 1)
	assert.NoError(t, observer.runs[JobChallengePurge][0])
}

func TestSchedulerJobContextHasDeadline(t *testing.T) {
	s := NewScheduler(WithJobTimeout(50 * time.Millisecond))
	var hasDeadline bool
	s.run("probe", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	assert.True(t, hasDeadline)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler()
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
