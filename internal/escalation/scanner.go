package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Default scanner settings.
const (
	DefaultResponseWarningLead   = 15 * time.Minute
	DefaultResolutionWarningLead = 30 * time.Minute
	DefaultScanWorkers           = 8
	DefaultNotifyTimeout         = 10 * time.Second
)

// Store is the part of the incident repository used by the scanner.
// Both write methods are conditional and report whether this call won.
type Store interface {
	LoadOpenIncidents(ctx context.Context) ([]*domain.Incident, error)
	CompareAndSetBreach(ctx context.Context, id string, slaType domain.SLAType, wasBreached bool) (bool, error)
	RecordWarningSent(ctx context.Context, id string, slaType domain.SLAType, target time.Time) (bool, error)
}

// ScannerConfig holds scanner settings. Zero values fall back to defaults.
type ScannerConfig struct {
	ResponseWarningLead   time.Duration
	ResolutionWarningLead time.Duration
	Workers               int
	NotifyTimeout         time.Duration
}

func (c ScannerConfig) withDefaults() ScannerConfig {
	if c.ResponseWarningLead <= 0 {
		c.ResponseWarningLead = DefaultResponseWarningLead
	}
	if c.ResolutionWarningLead <= 0 {
		c.ResolutionWarningLead = DefaultResolutionWarningLead
	}
	if c.Workers <= 0 {
		c.Workers = DefaultScanWorkers
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	return c
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Scanned  int
	Breaches int
	Warnings int
	Errors   int
	Duration time.Duration
}

// Scanner evaluates open incidents against their SLA targets.
type Scanner struct {
	store    Store
	notifier Notifier
	cfg      ScannerConfig
	now      func() time.Time
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScannerClock overrides the time source.
func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		s.now = now
	}
}

// NewScanner creates a new breach scanner.
func NewScanner(store Store, notifier Notifier, cfg ScannerConfig, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		store:    store,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type scanTally struct {
	breaches atomic.Int64
	warnings atomic.Int64
	errors   atomic.Int64
}

// Scan runs one pass over all open incidents.
// Repeating a scan with nothing new to report performs no writes and sends nothing.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	start := time.Now()
	now := s.now()

	open, err := s.store.LoadOpenIncidents(ctx)
	if err != nil {
		recordScanError()
		return ScanResult{}, fmt.Errorf("load open incidents: %w", err)
	}

	var (
		tally scanTally
		g     errgroup.Group
	)
	g.SetLimit(s.cfg.Workers)

	for _, incident := range open {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.evaluate(ctx, incident, now, &tally)
			return nil
		})
	}
	_ = g.Wait()

	result := ScanResult{
		Scanned:  len(open),
		Breaches: int(tally.breaches.Load()),
		Warnings: int(tally.warnings.Load()),
		Errors:   int(tally.errors.Load()),
		Duration: time.Since(start),
	}
	recordScan(result)

	slog.Info("sla scan completed",
		"scanned", result.Scanned,
		"breaches", result.Breaches,
		"warnings", result.Warnings,
		"errors", result.Errors,
		"duration", result.Duration,
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("scan interrupted: %w", err)
	}
	return result, nil
}

// evaluate checks both SLA types; a breach on one does not skip the other.
func (s *Scanner) evaluate(ctx context.Context, incident *domain.Incident, now time.Time, tally *scanTally) {
	if incident.ResponseTime == nil {
		s.evaluateType(ctx, incident, domain.SLATypeResponse, s.cfg.ResponseWarningLead, now, tally)
	}
	if incident.ResolvedAt == nil {
		s.evaluateType(ctx, incident, domain.SLATypeResolution, s.cfg.ResolutionWarningLead, now, tally)
	}
}

func (s *Scanner) evaluateType(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, lead time.Duration, now time.Time, tally *scanTally) {
	target := incident.TargetFor(slaType)
	if target.IsZero() {
		return
	}
	remaining := target.Sub(now)

	switch {
	case remaining <= 0:
		if incident.IsBreached(slaType) {
			return
		}
		won, err := s.store.CompareAndSetBreach(ctx, incident.ID, slaType, false)
		if err != nil {
			s.recordError(incident, slaType, "mark breach", err, tally)
			return
		}
		if !won {
			return
		}

		tally.breaches.Add(1)
		recordSLAEvent(AlertKindBreach, slaType)
		incident.SLABreached = true
		incident.Breaches = append(incident.Breaches, slaType)

		slog.Warn("sla breached",
			"incident_id", incident.ID,
			"number", incident.Number,
			"sla_type", slaType,
			"overdue_by", -remaining,
		)
		s.notify(ctx, incident, slaType, AlertKindBreach, func(ctx context.Context) error {
			return s.notifier.NotifyBreach(ctx, incident, slaType, -remaining)
		})

	case remaining <= lead:
		if incident.WarningSent(slaType, target) {
			return
		}
		won, err := s.store.RecordWarningSent(ctx, incident.ID, slaType, target)
		if err != nil {
			s.recordError(incident, slaType, "record warning", err, tally)
			return
		}
		if !won {
			return
		}

		tally.warnings.Add(1)
		recordSLAEvent(AlertKindWarning, slaType)
		incident.WarningsSent = append(incident.WarningsSent, domain.SLAWarning{Type: slaType, Target: target})

		s.notify(ctx, incident, slaType, AlertKindWarning, func(ctx context.Context) error {
			return s.notifier.NotifyWarning(ctx, incident, slaType, remaining)
		})
	}
}

// notify runs a notifier call with its own deadline. The scan context is not
// inherited for cancellation so a stopping scheduler does not cut off a
// notification for a state change that is already persisted.
func (s *Scanner) notify(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, kind AlertKind, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	if err := send(notifyCtx); err != nil {
		slog.Error("failed to notify",
			"incident_id", incident.ID,
			"sla_type", slaType,
			"kind", kind,
			"error", err,
		)
	}
}

func (s *Scanner) recordError(incident *domain.Incident, slaType domain.SLAType, op string, err error, tally *scanTally) {
	tally.errors.Add(1)
	recordScanError()
	slog.Error("failed to evaluate sla",
		"incident_id", incident.ID,
		"sla_type", slaType,
		"op", op,
		"error", err,
	)
}
