package domain

import "time"

// JobStatus is the outcome of the last run of a scheduled job.
type JobStatus string

// Job statuses.
const (
	JobStatusSuccess  JobStatus = "SUCCESS"
	JobStatusFailed   JobStatus = "FAILED"
	JobStatusNeverRun JobStatus = "NEVER_RUN"
)

// ScheduledJob is runtime bookkeeping for a registered periodic job.
type ScheduledJob struct {
	Name          string        `json:"name"`
	CronPattern   string        `json:"cron_pattern"`
	LastRunAt     *time.Time    `json:"last_run_at"`
	LastStatus    JobStatus     `json:"last_status"`
	LastError     string        `json:"last_error,omitempty"`
	LastDuration  time.Duration `json:"last_duration"`
	IsRunning     bool          `json:"is_running"`
	NextRunAt     *time.Time    `json:"next_run_at"`
	RunCount      int64         `json:"run_count"`
	FailureCount  int64         `json:"failure_count"`
	SkippedCount  int64         `json:"skipped_count"`
	LastSkippedAt *time.Time    `json:"last_skipped_at"`
}
