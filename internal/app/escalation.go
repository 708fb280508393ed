package app

import (
	"fmt"
	"log/slog"

	"github.com/bissquit/incident-sla/internal/config"
	"github.com/bissquit/incident-sla/internal/escalation"
	"github.com/bissquit/incident-sla/internal/escalation/email"
	"github.com/bissquit/incident-sla/internal/escalation/mattermost"
	"github.com/bissquit/incident-sla/internal/escalation/slack"
	"github.com/bissquit/incident-sla/internal/escalation/telegram"
)

// newDispatcher builds the escalation dispatcher. The log channel is always
// enabled; the others are added when configured.
func newDispatcher(cfg config.EscalationConfig, logger *slog.Logger) (*escalation.Dispatcher, error) {
	senders := []escalation.Sender{escalation.NewLogSender(logger)}

	if cfg.Mattermost.Enabled {
		s, err := mattermost.NewSender(mattermost.Config{
			WebhookURL:    cfg.Mattermost.WebhookURL,
			Username:      cfg.Mattermost.Username,
			IconURL:       cfg.Mattermost.IconURL,
			RatePerSecond: cfg.Mattermost.RatePerSecond,
			Burst:         cfg.Mattermost.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("create mattermost sender: %w", err)
		}
		senders = append(senders, s)
	}

	if cfg.Slack.Enabled {
		s, err := slack.NewSender(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			IconEmoji:  cfg.Slack.IconEmoji,
		})
		if err != nil {
			return nil, fmt.Errorf("create slack sender: %w", err)
		}
		senders = append(senders, s)
	}

	if cfg.Telegram.Enabled {
		s, err := telegram.NewSender(telegram.Config{
			BotToken:      cfg.Telegram.BotToken,
			ChatID:        cfg.Telegram.ChatID,
			RatePerSecond: cfg.Telegram.RatePerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("create telegram sender: %w", err)
		}
		senders = append(senders, s)
	}

	if cfg.Email.Enabled {
		s, err := email.NewSender(email.Config{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUser:     cfg.Email.SMTPUser,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromAddress:  cfg.Email.FromAddress,
			Recipients:   cfg.Email.Recipients,
		})
		if err != nil {
			return nil, fmt.Errorf("create email sender: %w", err)
		}
		senders = append(senders, s)
	}

	renderer, err := escalation.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	return escalation.NewDispatcher(renderer, cfg.BaseURL, senders...)
}
