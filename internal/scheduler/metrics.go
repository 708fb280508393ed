package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slaengine"

var (
	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Job runs by outcome",
		},
		[]string{"job", "status"},
	)

	jobSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_skips_total",
			Help:      "Ticks skipped because the previous run was still executing",
		},
		[]string{"job"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Job run duration",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"job"},
	)

	jobRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_running",
			Help:      "1 while the job is executing",
		},
		[]string{"job"},
	)
)

func recordRun(job string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	jobRuns.WithLabelValues(job, status).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func recordSkip(job string) {
	jobSkips.WithLabelValues(job).Inc()
}

func setRunning(job string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	jobRunning.WithLabelValues(job).Set(v)
}
