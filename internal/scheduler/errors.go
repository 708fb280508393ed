package scheduler

import "errors"

// Scheduler errors.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobAlreadyRunning = errors.New("job already running")
	ErrJobExists         = errors.New("job already registered")
	ErrSchedulerStopped  = errors.New("scheduler stopped")
)
