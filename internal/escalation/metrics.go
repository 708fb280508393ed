package escalation

import (
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slaengine"

var (
	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "duration_seconds",
			Help:      "Time to complete one breach scan",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	scannedIncidents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "incidents_scanned",
			Help:      "Open incidents evaluated by the last scan",
		},
	)

	slaEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "sla_events_total",
			Help:      "Warnings and breaches recorded by the scanner",
		},
		[]string{"kind", "sla_type"},
	)

	scanErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "errors_total",
			Help:      "Repository errors while evaluating incidents",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Escalation notifications by channel and outcome",
		},
		[]string{"channel_type", "kind", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)
)

func recordScan(result ScanResult) {
	scanDuration.Observe(result.Duration.Seconds())
	scannedIncidents.Set(float64(result.Scanned))
}

func recordSLAEvent(kind AlertKind, slaType domain.SLAType) {
	slaEvents.WithLabelValues(string(kind), string(slaType)).Inc()
}

func recordScanError() {
	scanErrors.Inc()
}

func recordNotificationSent(channelType domain.ChannelType, kind AlertKind, status string) {
	notificationsSent.WithLabelValues(string(channelType), string(kind), status).Inc()
}

func recordNotificationDuration(channelType domain.ChannelType, duration time.Duration) {
	notificationSendDuration.WithLabelValues(string(channelType)).Observe(duration.Seconds())
}
