// Package slack sends escalations to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/escalation"
	"github.com/slack-go/slack"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultUsername      = "SLA Engine"
	defaultAttempts      = 3
	defaultRetryInterval = 3 * time.Second
)

// Attachment colors by alert kind.
var kindColors = map[escalation.AlertKind]string{
	escalation.AlertKindWarning: "warning",
	escalation.AlertKindBreach:  "danger",
}

// Config holds Slack sender configuration.
type Config struct {
	WebhookURL    string
	Channel       string
	Username      string
	IconEmoji     string
	Timeout       time.Duration
	Attempts      uint
	RetryInterval time.Duration
}

// Sender posts escalations as Slack attachments.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Slack sender.
func NewSender(config Config) (*Sender, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("slack sender: webhook URL is required")
	}
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.Attempts == 0 {
		config.Attempts = defaultAttempts
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = defaultRetryInterval
	}

	slog.Info("slack sender configured", "channel", config.Channel)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeSlack
}

// Send posts the notification with retries on transient failures.
func (s *Sender) Send(ctx context.Context, notification escalation.Notification) error {
	msg := s.buildMessage(notification)

	return escalation.Deliver(ctx, s.config.Attempts, s.config.RetryInterval, func() error {
		err := slack.PostWebhookCustomHTTPContext(ctx, s.config.WebhookURL, s.httpClient, msg)
		if err != nil {
			slog.Warn("slack webhook failed", "error", err)
			return classify(err)
		}
		return nil
	})
}

func (s *Sender) buildMessage(notification escalation.Notification) *slack.WebhookMessage {
	return &slack.WebhookMessage{
		Channel:   s.config.Channel,
		Username:  s.config.Username,
		IconEmoji: s.config.IconEmoji,
		Text:      notification.Subject,
		Attachments: []slack.Attachment{
			{
				Color:    kindColors[notification.Kind],
				Text:     notification.Body,
				Fallback: notification.Subject,
				Footer:   string(notification.Priority),
			},
		},
	}
}

// classify marks client errors as permanent. Rate limits, server errors and
// network failures stay retryable.
func classify(err error) error {
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) &&
		statusErr.Code >= 400 && statusErr.Code < 500 &&
		statusErr.Code != http.StatusTooManyRequests {
		return escalation.NewPermanentError(fmt.Errorf("slack webhook: %w", err))
	}
	return escalation.NewRetryableError(fmt.Errorf("slack webhook: %w", err))
}
