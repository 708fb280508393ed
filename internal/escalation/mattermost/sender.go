// Package mattermost sends escalations to a Mattermost incoming webhook.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/escalation"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultUsername      = "SLA Engine"
	defaultRatePerSecond = 1
	defaultBurst         = 5
	defaultAttempts      = 3
	defaultRetryInterval = time.Second
)

// Config holds Mattermost sender configuration.
type Config struct {
	WebhookURL    string
	Username      string
	IconURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Attempts      uint
	RetryInterval time.Duration
}

// Sender posts escalations to one Mattermost channel.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new Mattermost sender.
func NewSender(config Config) (*Sender, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("mattermost sender: webhook URL is required")
	}
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = defaultRatePerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}
	if config.Attempts == 0 {
		config.Attempts = defaultAttempts
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = defaultRetryInterval
	}

	slog.Info("mattermost sender configured",
		"webhook", maskWebhookURL(config.WebhookURL),
		"rate_per_second", config.RatePerSecond,
		"burst", config.Burst,
	)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeMattermost
}

// Send posts the notification, waiting for the rate limiter first.
func (s *Sender) Send(ctx context.Context, notification escalation.Notification) error {
	payload := webhookPayload{
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
	}

	if notification.Subject != "" {
		payload.Text = fmt.Sprintf("### %s\n\n%s", notification.Subject, notification.Body)
	} else {
		payload.Text = notification.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return escalation.Deliver(ctx, s.config.Attempts, s.config.RetryInterval, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return escalation.NewPermanentError(fmt.Errorf("rate limiter: %w", err))
		}
		return s.post(ctx, body)
	})
}

func (s *Sender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return escalation.NewPermanentError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return escalation.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// StatusError is a non-200 webhook response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mattermost error %d: %s", e.Code, e.Message)
}

func (s *Sender) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return escalation.NewRetryableError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		slog.Debug("mattermost message sent", "webhook", maskWebhookURL(s.config.WebhookURL))
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return escalation.NewPermanentError(&StatusError{Code: resp.StatusCode, Message: fmt.Sprintf("bad request: %s", body)})

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return escalation.NewPermanentError(&StatusError{Code: resp.StatusCode, Message: "invalid or expired webhook"})

	case resp.StatusCode == http.StatusNotFound:
		return escalation.NewPermanentError(&StatusError{Code: resp.StatusCode, Message: "webhook not found"})

	case resp.StatusCode == http.StatusTooManyRequests:
		return escalation.NewRetryableError(&StatusError{Code: resp.StatusCode, Message: "rate limited"})

	case resp.StatusCode >= 500:
		return escalation.NewRetryableError(&StatusError{Code: resp.StatusCode, Message: fmt.Sprintf("server error: %s", body)})

	default:
		return escalation.NewPermanentError(&StatusError{Code: resp.StatusCode, Message: fmt.Sprintf("unexpected status: %s", body)})
	}
}

// maskWebhookURL hides part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
