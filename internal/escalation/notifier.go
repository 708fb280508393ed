// Package escalation detects approaching and breached SLA deadlines and
// delivers escalation messages for them.
package escalation

import (
	"context"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
)

// Notifier delivers SLA escalation messages.
// Callers log failures; a failed notification never reverts the state change that triggered it.
type Notifier interface {
	NotifyWarning(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, remaining time.Duration) error
	NotifyBreach(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, overdueBy time.Duration) error
}

// AlertKind distinguishes warnings from breaches.
type AlertKind string

// Alert kinds.
const (
	AlertKindWarning AlertKind = "warning"
	AlertKindBreach  AlertKind = "breach"
)

// Alert is the template payload for one escalation message.
type Alert struct {
	Kind     AlertKind
	SLAType  domain.SLAType
	Incident *domain.Incident
	Target   time.Time
	// Delta is the time remaining for a warning and the overdue time for a breach.
	Delta time.Duration
	URL   string
}

// Notification is a rendered message handed to a Sender.
type Notification struct {
	Kind     AlertKind
	Subject  string
	Body     string
	Priority domain.Priority
}

// Sender delivers rendered notifications over one channel.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, notification Notification) error
}
