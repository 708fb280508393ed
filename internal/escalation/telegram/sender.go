// Package telegram sends escalations to a Telegram chat through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/escalation"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL        = "https://api.telegram.org/bot%s/sendMessage"
	defaultTimeout       = 10 * time.Second
	defaultRatePerSecond = 1
	defaultAttempts      = 3
	defaultRetryInterval = 2 * time.Second
)

// Config holds telegram sender configuration.
type Config struct {
	BotToken      string
	ChatID        string
	RatePerSecond float64
	Timeout       time.Duration
	Attempts      uint
	RetryInterval time.Duration
}

// Sender posts escalations to one chat.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiURL     string
}

// NewSender creates a new telegram sender.
func NewSender(config Config) (*Sender, error) {
	if config.BotToken == "" {
		return nil, errors.New("telegram sender: bot token is required")
	}
	if config.ChatID == "" {
		return nil, errors.New("telegram sender: chat id is required")
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = defaultRatePerSecond
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

	slog.Info("telegram sender configured",
		"chat_id", config.ChatID,
		"rate_per_second", config.RatePerSecond,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RatePerSecond), 1),
		apiURL:     defaultAPIURL,
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeTelegram
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// APIError is a failed Bot API call.
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram error %d: %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Description)
}

// RetryDelay reports how long the Bot API asked to wait before retrying.
func (e *APIError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// Send posts the notification as plain text.
func (s *Sender) Send(ctx context.Context, notification escalation.Notification) error {
	text := notification.Body
	if notification.Subject != "" {
		text = notification.Subject + "\n\n" + notification.Body
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                s.config.ChatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return escalation.Deliver(ctx, s.config.Attempts, s.config.RetryInterval, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return escalation.NewPermanentError(fmt.Errorf("rate limit wait: %w", err))
		}
		return s.post(ctx, body)
	})
}

func (s *Sender) post(ctx context.Context, body []byte) error {
	url := fmt.Sprintf(s.apiURL, s.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return escalation.NewPermanentError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of the error.
		var urlErr interface{ Unwrap() error }
		if errors.As(err, &urlErr) {
			err = urlErr.Unwrap()
		}
		return escalation.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return escalation.NewRetryableError(fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}
	if result.OK {
		slog.Debug("telegram message sent", "chat_id", s.config.ChatID)
		return nil
	}

	return classify(resp.StatusCode, result)
}

func classify(status int, result apiResponse) error {
	apiErr := &APIError{Code: result.ErrorCode, Description: result.Description}
	if apiErr.Code == 0 {
		apiErr.Code = status
	}
	if result.Parameters != nil && result.Parameters.RetryAfter > 0 {
		apiErr.RetryAfter = time.Duration(result.Parameters.RetryAfter) * time.Second
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized:
		apiErr.Description = "invalid bot token"
		return escalation.NewPermanentError(apiErr)
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
		return escalation.NewRetryableError(apiErr)
	default:
		return escalation.NewPermanentError(apiErr)
	}
}
