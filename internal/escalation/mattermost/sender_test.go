package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/escalation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, url string) *Sender {
	t.Helper()
	sender, err := NewSender(Config{
		WebhookURL:    url,
		RatePerSecond: 1000,
		Attempts:      3,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return sender
}

func TestNewSender(t *testing.T) {
	_, err := NewSender(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook URL is required")

	sender, err := NewSender(Config{WebhookURL: "https://mm.example.com/hooks/abc"})
	require.NoError(t, err)
	assert.Equal(t, defaultUsername, sender.config.Username)
	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.Equal(t, uint(defaultAttempts), sender.config.Attempts)
	assert.Equal(t, domain.ChannelTypeMattermost, sender.Type())
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "### [SLA Breach] P1 INC0000001\n\nbody", payload.Text)
		assert.Equal(t, defaultUsername, payload.Username)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestSender(t, server.URL).Send(context.Background(), escalation.Notification{
		Subject: "[SLA Breach] P1 INC0000001",
		Body:    "body",
	})
	assert.NoError(t, err)
}

func TestSender_Send_Statuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, 1, false},
		{"unauthorized", http.StatusUnauthorized, 1, false},
		{"not found", http.StatusNotFound, 1, false},
		{"teapot", http.StatusTeapot, 1, false},
		{"rate limited", http.StatusTooManyRequests, 3, true},
		{"server error", http.StatusInternalServerError, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newTestSender(t, server.URL).Send(context.Background(), escalation.Notification{Body: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, tt.retryable, escalation.IsRetryable(err))

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.Code)
		})
	}
}

func TestSender_Send_RecoversAfterServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestSender(t, server.URL).Send(context.Background(), escalation.Notification{Body: "x"})
	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSender_Send_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestSender(t, server.URL).Send(ctx, escalation.Notification{Body: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaskWebhookURL(t *testing.T) {
	assert.Equal(t, "https://short", maskWebhookURL("https://short"))
	long := "https://mattermost.example.com/hooks/abcdefghijklmnop"
	assert.Equal(t, "https://mattermost.e...ghijklmnop", maskWebhookURL(long))
}
