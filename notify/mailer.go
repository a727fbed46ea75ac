package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends transactional email through the outbound transport. Failures
// are non-fatal to the surrounding batch; callers log and move on.
type Mailer interface {
	Send(ctx context.Context, subject, htmlBody, to string) error
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

// NewSMTPMailer builds a mailer for the given relay. Auth may be nil for an
// unauthenticated relay.
func NewSMTPMailer(addr, from string, auth smtp.Auth) *SMTPMailer {
	return &SMTPMailer{Addr: addr, From: from, Auth: auth}
}

func (m *SMTPMailer) Send(ctx context.Context, subject, htmlBody, to string) error {
	if to == "" {
		return fmt.Errorf("notify: empty recipient")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

// LogMailer records sends instead of delivering them. Used when no SMTP
// relay is configured so the in-app leg still works end to end.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, subject, htmlBody, to string) error {
	slog.InfoContext(ctx, "email transport disabled, dropping message", "to", to, "subject", subject)
	return nil
}
