package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
)

// Event is a lifecycle operation requested on an incident.
type Event string

// Lifecycle events.
const (
	EventStart   Event = "start"
	EventHold    Event = "hold"
	EventResolve Event = "resolve"
	EventClose   Event = "close"
	EventReopen  Event = "reopen"
	EventCancel  Event = "cancel"
)

// IsValid checks if the event is known.
func (e Event) IsValid() bool {
	_, ok := transitions[e]
	return ok
}

type transitionRule struct {
	from []domain.IncidentState
	to   domain.IncidentState
}

var transitions = map[Event]transitionRule{
	EventStart: {
		from: []domain.IncidentState{domain.IncidentStateNew, domain.IncidentStateOnHold},
		to:   domain.IncidentStateInProgress,
	},
	EventHold: {
		from: []domain.IncidentState{domain.IncidentStateNew, domain.IncidentStateInProgress},
		to:   domain.IncidentStateOnHold,
	},
	EventResolve: {
		from: []domain.IncidentState{domain.IncidentStateInProgress, domain.IncidentStateOnHold},
		to:   domain.IncidentStateResolved,
	},
	EventClose: {
		from: []domain.IncidentState{domain.IncidentStateResolved},
		to:   domain.IncidentStateClosed,
	},
	EventReopen: {
		from: []domain.IncidentState{domain.IncidentStateResolved, domain.IncidentStateClosed},
		to:   domain.IncidentStateInProgress,
	},
	EventCancel: {
		from: []domain.IncidentState{
			domain.IncidentStateNew,
			domain.IncidentStateInProgress,
			domain.IncidentStateOnHold,
			domain.IncidentStateResolved,
			domain.IncidentStateClosed,
		},
		to: domain.IncidentStateCancelled,
	},
}

// NextState returns the state reached by applying event in state from.
func NextState(from domain.IncidentState, event Event) (domain.IncidentState, error) {
	rule, ok := transitions[event]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	for _, s := range rule.from {
		if s == from {
			return rule.to, nil
		}
	}
	return "", &InvalidTransitionError{From: from, Event: event}
}

// ReopenPolicy controls what happens to breach markers on reopen.
type ReopenPolicy string

// Reopen policies.
const (
	// ReopenKeepBreach leaves SLABreached and per-type markers untouched.
	ReopenKeepBreach ReopenPolicy = "keep"
	// ReopenClearBreach resets them, allowing a new breach to be reported.
	ReopenClearBreach ReopenPolicy = "clear"
)

// IsValid checks if the policy is known.
func (p ReopenPolicy) IsValid() bool {
	return p == ReopenKeepBreach || p == ReopenClearBreach
}

// PlanTransition computes the persisted effect of event on incident at now.
// It does not mutate incident.
func PlanTransition(incident *domain.Incident, event Event, now time.Time, policy ReopenPolicy) (Transition, error) {
	to, err := NextState(incident.State, event)
	if err != nil {
		return Transition{}, err
	}

	t := Transition{
		Event:        event,
		From:         incident.State,
		To:           to,
		At:           now,
		ResponseTime: incident.ResponseTime,
		ResolvedAt:   incident.ResolvedAt,
		ClosedAt:     incident.ClosedAt,
	}

	switch event {
	case EventStart:
		if t.ResponseTime == nil {
			t.ResponseTime = &now
		}
	case EventResolve:
		t.ResolvedAt = &now
	case EventClose:
		t.ClosedAt = &now
	case EventReopen:
		t.ResolvedAt = nil
		t.ClosedAt = nil
		t.ClearBreaches = policy == ReopenClearBreach
	}

	return t, nil
}

// BreachNotifier is notified when a lifecycle event discovers a breach.
type BreachNotifier interface {
	NotifyBreach(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, overdueBy time.Duration) error
}

// DefaultNotifyTimeout bounds a single notifier call.
const DefaultNotifyTimeout = 10 * time.Second

// Lifecycle applies lifecycle events to incidents.
type Lifecycle struct {
	repo          Repository
	notifier      BreachNotifier
	policy        ReopenPolicy
	notifyTimeout time.Duration
	now           func() time.Time
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithReopenPolicy sets the reopen policy.
func WithReopenPolicy(p ReopenPolicy) LifecycleOption {
	return func(l *Lifecycle) {
		l.policy = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		l.now = now
	}
}

// WithNotifyTimeout bounds each notifier call.
func WithNotifyTimeout(d time.Duration) LifecycleOption {
	return func(l *Lifecycle) {
		l.notifyTimeout = d
	}
}

// NewLifecycle creates a new Lifecycle. notifier may be nil.
func NewLifecycle(repo Repository, notifier BreachNotifier, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		repo:          repo,
		notifier:      notifier,
		policy:        ReopenKeepBreach,
		notifyTimeout: DefaultNotifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Transition applies event to incident and returns the updated incident.
// On error the stored incident is unchanged.
func (l *Lifecycle) Transition(ctx context.Context, incident *domain.Incident, event Event) (*domain.Incident, error) {
	now := l.now().UTC()

	t, err := PlanTransition(incident, event, now, l.policy)
	if err != nil {
		recordTransition(event, "rejected")
		return nil, err
	}

	updated, err := l.repo.ApplyLifecycleTransition(ctx, incident.ID, t)
	if err != nil {
		recordTransition(event, "failed")
		return nil, fmt.Errorf("apply %s transition: %w", event, err)
	}
	recordTransition(event, "applied")

	slog.Info("incident transitioned",
		"incident_id", updated.ID,
		"number", updated.Number,
		"event", event,
		"from", t.From,
		"to", t.To,
	)

	switch event {
	case EventStart:
		if incident.ResponseTime == nil {
			l.checkBreach(ctx, updated, domain.SLATypeResponse, now)
		}
	case EventResolve:
		l.checkBreach(ctx, updated, domain.SLATypeResolution, now)
	}

	return updated, nil
}

// checkBreach marks slaType breached when at is past its target and notifies
// if this call won the conditional write.
func (l *Lifecycle) checkBreach(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, at time.Time) {
	target := incident.TargetFor(slaType)
	if !at.After(target) || incident.IsBreached(slaType) {
		return
	}

	won, err := l.repo.CompareAndSetBreach(ctx, incident.ID, slaType, false)
	if err != nil {
		slog.Error("failed to mark sla breach",
			"incident_id", incident.ID,
			"sla_type", slaType,
			"error", err,
		)
		return
	}
	if !won {
		return
	}

	incident.SLABreached = true
	incident.Breaches = append(incident.Breaches, slaType)

	if l.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.notifyTimeout)
	defer cancel()

	if err := l.notifier.NotifyBreach(notifyCtx, incident, slaType, at.Sub(target)); err != nil {
		slog.Error("failed to send breach notification",
			"incident_id", incident.ID,
			"sla_type", slaType,
			"error", err,
		)
	}
}
