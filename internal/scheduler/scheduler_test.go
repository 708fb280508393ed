package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

// blockingJob runs until release is closed.
type blockingJob struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingJob() *blockingJob {
	return &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingJob) Run(context.Context) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestScheduler_Register(t *testing.T) {
	s := New()

	require.NoError(t, s.Register("scan", "@every 5m", noop))

	err := s.Register("scan", "@every 1m", noop)
	assert.ErrorIs(t, err, ErrJobExists)

	err = s.Register("broken", "not a cron", noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron pattern")

	assert.Error(t, s.Register("", "@hourly", noop))
	assert.Error(t, s.Register("nil", "@hourly", nil))

	require.NoError(t, s.Register("five-field", "*/5 * * * *", noop))
}

func TestScheduler_StatusBeforeRun(t *testing.T) {
	s := New()
	require.NoError(t, s.Register("b", "@hourly", noop))
	require.NoError(t, s.Register("a", "@daily", noop))

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "b", status[0].Name)
	assert.Equal(t, "a", status[1].Name)
	for _, st := range status {
		assert.Equal(t, domain.JobStatusNeverRun, st.LastStatus)
		assert.Nil(t, st.LastRunAt)
		assert.False(t, st.IsRunning)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := New()
	var calls atomic.Int32
	require.NoError(t, s.Register("scan", "@hourly", func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, s.RunNow("scan"))
	assert.Equal(t, int32(1), calls.Load())

	st, err := s.JobStatus("scan")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSuccess, st.LastStatus)
	assert.Equal(t, int64(1), st.RunCount)
	assert.NotNil(t, st.LastRunAt)
	assert.Empty(t, st.LastError)

	assert.ErrorIs(t, s.RunNow("missing"), ErrJobNotFound)
	_, err = s.JobStatus("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_FailingJobIsIsolated(t *testing.T) {
	s := New()
	fail := atomic.Bool{}
	fail.Store(true)

	require.NoError(t, s.Register("flaky", "@hourly", func(context.Context) error {
		if fail.Load() {
			return errors.New("database unavailable")
		}
		return nil
	}))
	require.NoError(t, s.Register("healthy", "@hourly", noop))

	err := s.RunNow("flaky")
	assert.EqualError(t, err, "database unavailable")
	require.NoError(t, s.RunNow("healthy"))

	st, err := s.JobStatus("flaky")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, st.LastStatus)
	assert.Equal(t, "database unavailable", st.LastError)
	assert.Equal(t, int64(1), st.FailureCount)

	st, err = s.JobStatus("healthy")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSuccess, st.LastStatus)

	// The failed job is eligible to run again.
	fail.Store(false)
	require.NoError(t, s.RunNow("flaky"))
	st, err = s.JobStatus("flaky")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSuccess, st.LastStatus)
	assert.Empty(t, st.LastError)
	assert.Equal(t, int64(2), st.RunCount)
	assert.Equal(t, int64(1), st.FailureCount)
}

func TestScheduler_PanicIsRecorded(t *testing.T) {
	s := New()
	require.NoError(t, s.Register("boom", "@hourly", func(context.Context) error {
		panic("nil map")
	}))

	err := s.RunNow("boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil map")

	st, err := s.JobStatus("boom")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, st.LastStatus)
	assert.False(t, st.IsRunning)

	// The job is not stuck in the running state.
	err = s.RunNow("boom")
	assert.NotErrorIs(t, err, ErrJobAlreadyRunning)
}

func TestScheduler_RunNowExcludesConcurrentRun(t *testing.T) {
	s := New()
	job := newBlockingJob()
	require.NoError(t, s.Register("slow", "@hourly", job.Run))

	done := make(chan error, 1)
	go func() { done <- s.RunNow("slow") }()
	<-job.started

	err := s.RunNow("slow")
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	st, err := s.JobStatus("slow")
	require.NoError(t, err)
	assert.True(t, st.IsRunning)
	assert.Equal(t, int64(1), st.SkippedCount)
	assert.NotNil(t, st.LastSkippedAt)

	close(job.release)
	require.NoError(t, <-done)

	st, err = s.JobStatus("slow")
	require.NoError(t, err)
	assert.False(t, st.IsRunning)
	assert.Equal(t, int64(1), st.RunCount)
}

func TestScheduler_TicksRunJob(t *testing.T) {
	s := New()
	var calls atomic.Int32
	require.NoError(t, s.Register("tick", "@every 1s", func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	st, err := s.JobStatus("tick")
	require.NoError(t, err)
	assert.NotNil(t, st.NextRunAt)

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_OverlappingTickIsSkipped(t *testing.T) {
	s := New()
	job := newBlockingJob()
	require.NoError(t, s.Register("slow", "@every 1s", job.Run))

	s.Start()

	<-job.started
	assert.Eventually(t, func() bool {
		st, err := s.JobStatus("slow")
		return err == nil && st.SkippedCount >= 1
	}, 5*time.Second, 50*time.Millisecond)

	st, err := s.JobStatus("slow")
	require.NoError(t, err)
	assert.Zero(t, st.RunCount, "skipped ticks must not queue runs")
	assert.True(t, st.IsRunning)

	close(job.release)
	require.NoError(t, s.Stop(context.Background()))

	st, err = s.JobStatus("slow")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.RunCount, int64(1))
	assert.False(t, st.IsRunning)
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	s := New()
	var finished atomic.Bool
	started := make(chan struct{})
	require.NoError(t, s.Register("slow", "@hourly", func(ctx context.Context) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(ctx.Err() == nil)
		return nil
	}))
	s.Start()

	go func() { _ = s.RunNow("slow") }()
	<-started

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, finished.Load(), "in-flight run must complete uncancelled")
}

func TestScheduler_StopTimeout(t *testing.T) {
	s := New()
	job := newBlockingJob()
	require.NoError(t, s.Register("slow", "@hourly", job.Run))

	go func() { _ = s.RunNow("slow") }()
	<-job.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(job.release)
}

func TestScheduler_StopIsSafe(t *testing.T) {
	s := New()
	require.NoError(t, s.Register("scan", "@hourly", noop))

	// Stop before Start and twice.
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	s.Start()
	assert.ErrorIs(t, s.RunNow("scan"), ErrSchedulerStopped)
	assert.ErrorIs(t, s.Register("late", "@hourly", noop), ErrSchedulerStopped)
}

func TestScheduler_RunTimeout(t *testing.T) {
	s := New(WithRunTimeout(20 * time.Millisecond))
	require.NoError(t, s.Register("slow", "@hourly", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	err := s.RunNow("slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
