package incidents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slaengine"

var incidentTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "incidents",
		Name:      "transitions_total",
		Help:      "Lifecycle events by outcome",
	},
	[]string{"event", "result"},
)

func recordTransition(event Event, result string) {
	incidentTransitions.WithLabelValues(string(event), result).Inc()
}
