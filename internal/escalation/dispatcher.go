package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
)

// Dispatcher implements Notifier by rendering each alert per channel and
// handing it to every configured sender.
type Dispatcher struct {
	renderer *Renderer
	senders  []Sender
	baseURL  string
}

// NewDispatcher creates a new escalation dispatcher.
// baseURL is used to link to the incident and may be empty.
func NewDispatcher(renderer *Renderer, baseURL string, senders ...Sender) (*Dispatcher, error) {
	if len(senders) == 0 {
		return nil, ErrNoSenders
	}

	channels := make([]string, 0, len(senders))
	for _, s := range senders {
		channels = append(channels, string(s.Type()))
	}
	slog.Info("escalation dispatcher configured", "channels", channels)

	return &Dispatcher{
		renderer: renderer,
		senders:  senders,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// NotifyWarning sends an approaching-deadline alert.
func (d *Dispatcher) NotifyWarning(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, remaining time.Duration) error {
	return d.dispatch(ctx, Alert{
		Kind:     AlertKindWarning,
		SLAType:  slaType,
		Incident: incident,
		Target:   incident.TargetFor(slaType),
		Delta:    remaining,
	})
}

// NotifyBreach sends a missed-deadline alert.
func (d *Dispatcher) NotifyBreach(ctx context.Context, incident *domain.Incident, slaType domain.SLAType, overdueBy time.Duration) error {
	return d.dispatch(ctx, Alert{
		Kind:     AlertKindBreach,
		SLAType:  slaType,
		Incident: incident,
		Target:   incident.TargetFor(slaType),
		Delta:    overdueBy,
	})
}

// dispatch delivers to every sender and joins the failures.
// One failing channel does not prevent delivery to the others.
func (d *Dispatcher) dispatch(ctx context.Context, alert Alert) error {
	if d.baseURL != "" {
		alert.URL = fmt.Sprintf("%s/api/v1/incidents/%s", d.baseURL, alert.Incident.ID)
	}

	var errs []error
	for _, sender := range d.senders {
		channelType := sender.Type()
		start := time.Now()

		notification, err := d.renderer.Render(channelType, alert)
		if err != nil {
			recordNotificationSent(channelType, alert.Kind, "failed")
			errs = append(errs, fmt.Errorf("render %s: %w", channelType, err))
			continue
		}

		if err := sender.Send(ctx, notification); err != nil {
			slog.Error("failed to send escalation",
				"channel_type", channelType,
				"incident_id", alert.Incident.ID,
				"kind", alert.Kind,
				"sla_type", alert.SLAType,
				"error", err,
			)
			recordNotificationSent(channelType, alert.Kind, "failed")
			errs = append(errs, fmt.Errorf("send %s: %w", channelType, err))
			continue
		}

		recordNotificationSent(channelType, alert.Kind, "success")
		recordNotificationDuration(channelType, time.Since(start))
	}

	return errors.Join(errs...)
}

// LogSender writes escalations to the structured log. It is always enabled.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log sender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Type returns the channel type.
func (s *LogSender) Type() domain.ChannelType {
	return domain.ChannelTypeLog
}

// Send logs the notification subject.
func (s *LogSender) Send(ctx context.Context, notification Notification) error {
	level := slog.LevelWarn
	if notification.Kind == AlertKindBreach {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "sla escalation",
		"kind", notification.Kind,
		"priority", notification.Priority,
		"subject", notification.Subject,
	)
	return nil
}
