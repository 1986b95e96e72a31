package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officialmortgage/livbridge/plugin/ai"
)

func TestWebhookSender(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-secret", r.Header.Get("X-Webhook-Secret"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(WebhookConfig{
		URL:     server.URL,
		Secret:  "test-secret",
		Timeout: 5 * time.Second,
	})
	assert.Equal(t, "webhook", sender.Name())

	err := sender.Notify(context.Background(), map[string]any{"lead_status": "HOT", "sessionId": "CA123"})
	require.NoError(t, err)
	assert.Equal(t, "HOT", received["lead_status"])
	assert.Equal(t, "CA123", received["sessionId"])
}

func TestWebhookSender_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	sender := NewWebhookSender(WebhookConfig{URL: server.URL})

	err := sender.Notify(context.Background(), map[string]any{})
	var statusErr *ai.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.True(t, ai.ShouldRetry(err))
}

func TestWebhookSender_CustomHeaders(t *testing.T) {
	var receivedHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewWebhookSender(WebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer token123"},
	})

	require.NoError(t, sender.Notify(context.Background(), map[string]any{}))
	assert.Equal(t, "Bearer token123", receivedHeaders.Get("Authorization"))
}

type captured struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestEmailSender(cfg EmailConfig, c *captured, err error) *EmailSender {
	s := NewEmailSender(cfg)
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*c = captured{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return err
	}
	return s
}

func TestEmailSender(t *testing.T) {
	cfg := EmailConfig{
		SMTPHost:    "smtp.example.com",
		Username:    "liv",
		Password:    "secret",
		FromAddress: "liv@example.com",
		FromName:    "Liv",
	}
	assert.True(t, cfg.Enabled())

	t.Run("sends", func(t *testing.T) {
		var c captured
		s := newTestEmailSender(cfg, &c, nil)

		require.NoError(t, s.Send(context.Background(), "pat@example.com", "Your link", "line one\nline two"))
		assert.Equal(t, "smtp.example.com:587", c.addr)
		assert.NotNil(t, c.auth)
		assert.Equal(t, "liv@example.com", c.from)
		assert.Equal(t, []string{"pat@example.com"}, c.to)
		assert.Contains(t, c.msg, "From: Liv <liv@example.com>\r\n")
		assert.Contains(t, c.msg, "Subject: Your link\r\n")
		assert.Contains(t, c.msg, "\r\n\r\nline one\r\nline two")
	})

	t.Run("header injection", func(t *testing.T) {
		var c captured
		s := newTestEmailSender(cfg, &c, nil)
		assert.Error(t, s.Send(context.Background(), "pat@example.com\r\nBcc: x@example.com", "hi", "body"))
		assert.Empty(t, c.addr)
	})

	t.Run("smtp failure", func(t *testing.T) {
		var c captured
		s := newTestEmailSender(cfg, &c, errors.New("421 service not available"))
		assert.ErrorContains(t, s.Send(context.Background(), "pat@example.com", "hi", "body"), "421")
	})

	t.Run("no auth without username", func(t *testing.T) {
		var c captured
		s := newTestEmailSender(EmailConfig{SMTPHost: "localhost", SMTPPort: 25, FromAddress: "liv@example.com"}, &c, nil)
		require.NoError(t, s.Send(context.Background(), "pat@example.com", "hi", "body"))
		assert.Nil(t, c.auth)
		assert.Equal(t, "localhost:25", c.addr)
	})
}

func TestEmailNotifier(t *testing.T) {
	var c captured
	n := NewEmailNotifier(newTestEmailSender(EmailConfig{SMTPHost: "smtp.example.com", FromAddress: "liv@example.com"}, &c, nil), "ops@example.com")

	require.NoError(t, n.Notify(context.Background(), map[string]any{"type": "escalation", "reason": "rate question"}))
	assert.Equal(t, []string{"ops@example.com"}, c.to)
	assert.Contains(t, c.msg, "Subject: Liv notification: escalation\r\n")
	assert.Contains(t, c.msg, `"reason": "rate question"`)
}

type fakeSender struct {
	name  string
	err   error
	calls int
}

func (f *fakeSender) Notify(context.Context, any) error {
	f.calls++
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestDispatcher(t *testing.T) {
	t.Run("no channels", func(t *testing.T) {
		assert.ErrorIs(t, NewDispatcher().Notify(context.Background(), nil), ErrNoChannels)
	})

	t.Run("one channel failing is tolerated", func(t *testing.T) {
		d := NewDispatcher()
		bad := &fakeSender{name: "webhook", err: errors.New("500")}
		good := &fakeSender{name: "email"}
		d.Register(bad)
		d.Register(good)

		assert.NoError(t, d.Notify(context.Background(), map[string]any{}))
		assert.Equal(t, 1, bad.calls)
		assert.Equal(t, 1, good.calls)
		assert.Equal(t, 2, d.Len())
	})

	t.Run("all failing", func(t *testing.T) {
		d := NewDispatcher()
		d.Register(&fakeSender{name: "webhook", err: errors.New("500")})
		d.Register(&fakeSender{name: "email", err: errors.New("421")})

		err := d.Notify(context.Background(), map[string]any{})
		assert.ErrorContains(t, err, "webhook: 500")
		assert.ErrorContains(t, err, "email: 421")
	})
}
