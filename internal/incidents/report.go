package incidents

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
)

const (
	// DefaultReportPeriod is used when no period is requested.
	DefaultReportPeriod = "30d"
	maxReportWindow     = 366 * 24 * time.Hour
)

// ComplianceCounts are per-priority totals over incidents created in a window.
type ComplianceCounts struct {
	Priority           domain.Priority `json:"priority"`
	Total              int             `json:"total"`
	Breached           int             `json:"breached"`
	ResponseBreached   int             `json:"response_breached"`
	ResolutionBreached int             `json:"resolution_breached"`
}

// PriorityCompliance is one row of the SLA report.
type PriorityCompliance struct {
	ComplianceCounts
	CompliancePercent float64 `json:"compliance_percent"`
}

// SLAReport summarises SLA compliance for incidents created in [From, To].
// ByPriority always holds P1..P4 in order.
type SLAReport struct {
	Period            string               `json:"period"`
	From              time.Time            `json:"from"`
	To                time.Time            `json:"to"`
	Total             int                  `json:"total"`
	Breached          int                  `json:"breached"`
	CompliancePercent float64              `json:"compliance_percent"`
	ByPriority        []PriorityCompliance `json:"by_priority"`
}

// ParseReportPeriod accepts a day count ("7d", "30d") or a Go duration ("12h").
func ParseReportPeriod(period string) (time.Duration, error) {
	period = strings.TrimSpace(strings.ToLower(period))
	if period == "" {
		period = DefaultReportPeriod
	}

	var window time.Duration
	if days, ok := strings.CutSuffix(period, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
		}
		window = time.Duration(n) * 24 * time.Hour
	} else {
		d, err := time.ParseDuration(period)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
		}
		window = d
	}

	if window <= 0 || window > maxReportWindow {
		return 0, fmt.Errorf("%w: %q must be positive and at most 366d", ErrInvalidPeriod, period)
	}
	return window, nil
}

// SLAReport counts breaches of incidents created within period before now.
func (s *Service) SLAReport(ctx context.Context, period string) (*SLAReport, error) {
	period = strings.ToLower(strings.TrimSpace(period))
	if period == "" {
		period = DefaultReportPeriod
	}
	window, err := ParseReportPeriod(period)
	if err != nil {
		return nil, err
	}

	to := s.now().UTC()
	from := to.Add(-window)

	counts, err := s.repo.SLACompliance(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("sla compliance: %w", err)
	}
	return buildReport(period, from, to, counts), nil
}

func buildReport(period string, from, to time.Time, counts []ComplianceCounts) *SLAReport {
	byPriority := make(map[domain.Priority]ComplianceCounts, len(counts))
	for _, c := range counts {
		byPriority[c.Priority] = c
	}

	report := &SLAReport{
		Period:     period,
		From:       from,
		To:         to,
		ByPriority: make([]PriorityCompliance, 0, len(domain.Priorities)),
	}
	for _, p := range domain.Priorities {
		c := byPriority[p]
		c.Priority = p
		report.Total += c.Total
		report.Breached += c.Breached
		report.ByPriority = append(report.ByPriority, PriorityCompliance{
			ComplianceCounts:  c,
			CompliancePercent: compliancePercent(c.Total, c.Breached),
		})
	}
	report.CompliancePercent = compliancePercent(report.Total, report.Breached)
	return report
}

// An empty window is fully compliant.
func compliancePercent(total, breached int) float64 {
	if total == 0 {
		return 100
	}
	pct := float64(total-breached) / float64(total) * 100
	return math.Round(pct*100) / 100
}
