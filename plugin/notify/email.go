package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// Enabled reports whether enough is configured to send mail.
func (c EmailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.FromAddress != ""
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender sends plain-text email over SMTP.
type EmailSender struct {
	config   EmailConfig
	sendMail sendMailFunc
	logger   *slog.Logger
}

// NewEmailSender creates a new email sender.
func NewEmailSender(config EmailConfig) *EmailSender {
	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	return &EmailSender{
		config:   config,
		sendMail: smtp.SendMail,
		logger:   slog.Default(),
	}
}

// Send delivers one message.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("email recipient is required")
	}
	if strings.ContainsAny(to+subject, "\r\n") {
		return fmt.Errorf("invalid email header value")
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPHost)
	}
	addr := net.JoinHostPort(s.config.SMTPHost, strconv.Itoa(s.config.SMTPPort))

	if err := s.sendMail(addr, auth, s.config.FromAddress, []string{to}, s.message(to, subject, body)); err != nil {
		s.logger.Error("email send failed", "to", to, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("email sent", "to", to, "message_length", len(body))
	return nil
}

func (s *EmailSender) message(to, subject, body string) []byte {
	from := s.config.FromAddress
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// EmailNotifier mails notifications to a fixed address.
type EmailNotifier struct {
	sender *EmailSender
	to     string
}

// NewEmailNotifier creates a notifier mailing to the given address.
func NewEmailNotifier(sender *EmailSender, to string) *EmailNotifier {
	return &EmailNotifier{sender: sender, to: to}
}

// Notify mails payload as indented JSON.
func (n *EmailNotifier) Notify(ctx context.Context, payload any) error {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	subject := "Liv notification"
	if m, ok := payload.(map[string]any); ok {
		if kind, ok := m["type"].(string); ok && kind != "" {
			subject += ": " + kind
		} else if status, ok := m["lead_status"].(string); ok && status != "" {
			subject += ": " + status + " lead"
		}
	}
	return n.sender.Send(ctx, n.to, subject, string(body))
}

// Name returns the sender name.
func (n *EmailNotifier) Name() string {
	return "email"
}
