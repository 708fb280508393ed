package metrics

import (
	"strconv"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordDBPoolMetrics updates database pool metrics.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}

// RecordOpenIncidents replaces the open incidents gauge with counts from incidents.
func RecordOpenIncidents(incidents []*domain.Incident) {
	counts := make(map[domain.Priority][2]int, len(domain.Priorities))
	for _, inc := range incidents {
		c := counts[inc.Priority]
		if inc.SLABreached {
			c[1]++
		} else {
			c[0]++
		}
		counts[inc.Priority] = c
	}

	for _, p := range domain.Priorities {
		c := counts[p]
		OpenIncidents.WithLabelValues(string(p), strconv.FormatBool(false)).Set(float64(c[0]))
		OpenIncidents.WithLabelValues(string(p), strconv.FormatBool(true)).Set(float64(c[1]))
	}
}
