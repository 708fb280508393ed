// Package scheduler runs named periodic jobs on cron schedules.
//
// Each job is isolated: a failing or panicking handler is recorded in the
// job's status and never affects other jobs or later ticks. A job never runs
// concurrently with itself; a tick that fires while the previous run is still
// executing is skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/robfig/cron/v3"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// Trigger names what started a run.
type Trigger string

// Triggers.
const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

type job struct {
	name    string
	pattern string
	fn      JobFunc
	entryID cron.EntryID
	running atomic.Bool

	mu     sync.Mutex
	status domain.ScheduledJob
}

// Scheduler owns a cron instance and the jobs registered on it.
type Scheduler struct {
	cron       *cron.Cron
	parser     cron.Parser
	runTimeout time.Duration
	now        func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	started bool
	stopped bool
	manual  sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the time zone cron patterns are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithLocation(loc), cron.WithParser(s.parser))
	}
}

// WithRunTimeout bounds each run. Zero means no limit.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.runTimeout = d
	}
}

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a scheduler. Patterns use the standard 5-field syntax and
// descriptors such as "@every 5m" or "@hourly".
func New(opts ...Option) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		parser: parser,
		cron:   cron.New(cron.WithParser(parser)),
		now:    time.Now,
		jobs:   make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. Jobs may be registered before or after Start.
func (s *Scheduler) Register(name, pattern string, fn JobFunc) error {
	if name == "" {
		return errors.New("job name is required")
	}
	if fn == nil {
		return fmt.Errorf("job %s: handler is required", name)
	}

	schedule, err := s.parser.Parse(pattern)
	if err != nil {
		return fmt.Errorf("job %s: parse cron pattern %q: %w", name, pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, name)
	}

	j := &job{
		name:    name,
		pattern: pattern,
		fn:      fn,
		status: domain.ScheduledJob{
			Name:        name,
			CronPattern: pattern,
			LastStatus:  domain.JobStatusNeverRun,
		},
	}
	j.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		if err := s.execute(j, TriggerSchedule); err != nil && !errors.Is(err, ErrJobAlreadyRunning) {
			slog.Debug("scheduled run finished with error", "job", name, "error", err)
		}
	}))

	s.jobs[name] = j
	s.order = append(s.order, name)

	slog.Info("job registered", "job", name, "cron", pattern)
	return nil
}

// Start begins ticking. Calling Start more than once has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()

	slog.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts future ticks and waits for in-flight runs to finish.
// Runs are not cancelled; ctx only bounds how long Stop waits.
// Stop is safe to call at any time and more than once.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.manual.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out, runs still in flight")
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// RunNow runs a job immediately in the caller's goroutine and returns the
// handler error. It applies the same exclusion as a scheduled tick.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.manual.Add(1)
	s.mu.Unlock()

	defer s.manual.Done()
	return s.execute(j, TriggerManual)
}

// Status returns a snapshot of all jobs in registration order.
func (s *Scheduler) Status() []domain.ScheduledJob {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.order))
	for _, name := range s.order {
		jobs = append(jobs, s.jobs[name])
	}
	s.mu.Unlock()

	result := make([]domain.ScheduledJob, 0, len(jobs))
	for _, j := range jobs {
		result = append(result, s.snapshot(j))
	}
	return result
}

// JobStatus returns the status of a single job.
func (s *Scheduler) JobStatus(name string) (domain.ScheduledJob, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return domain.ScheduledJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.snapshot(j), nil
}

func (s *Scheduler) snapshot(j *job) domain.ScheduledJob {
	j.mu.Lock()
	st := j.status
	j.mu.Unlock()

	st.LastRunAt = copyTime(st.LastRunAt)
	st.LastSkippedAt = copyTime(st.LastSkippedAt)
	st.IsRunning = j.running.Load()
	if next := s.cron.Entry(j.entryID).Next; !next.IsZero() {
		st.NextRunAt = &next
	}
	return st
}

// execute runs the job unless it is already running.
func (s *Scheduler) execute(j *job, trigger Trigger) error {
	if !j.running.CompareAndSwap(false, true) {
		now := s.now()
		j.mu.Lock()
		j.status.SkippedCount++
		j.status.LastSkippedAt = &now
		j.mu.Unlock()

		recordSkip(j.name)
		slog.Warn("job still running, skipping", "job", j.name, "trigger", trigger)
		return fmt.Errorf("%w: %s", ErrJobAlreadyRunning, j.name)
	}
	defer j.running.Store(false)

	start := s.now()
	setRunning(j.name, true)
	defer setRunning(j.name, false)

	slog.Debug("job started", "job", j.name, "trigger", trigger)

	ctx := context.Background()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	err := safeCall(ctx, j.fn)
	duration := s.now().Sub(start)

	j.mu.Lock()
	j.status.LastRunAt = &start
	j.status.LastDuration = duration
	j.status.RunCount++
	if err != nil {
		j.status.LastStatus = domain.JobStatusFailed
		j.status.LastError = err.Error()
		j.status.FailureCount++
	} else {
		j.status.LastStatus = domain.JobStatusSuccess
		j.status.LastError = ""
	}
	j.mu.Unlock()

	recordRun(j.name, err, duration)

	if err != nil {
		slog.Error("job failed",
			"job", j.name,
			"trigger", trigger,
			"duration", duration,
			"error", err,
		)
		return err
	}

	slog.Info("job completed", "job", j.name, "trigger", trigger, "duration", duration)
	return nil
}

// safeCall turns a panicking handler into an error.
func safeCall(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
