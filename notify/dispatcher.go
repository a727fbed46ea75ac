package notify

import (
	"context"
	"errors"
	"html"
	"log/slog"
)

// NotificationCreator abstracts the sink for testability.
type NotificationCreator interface {
	Create(ctx context.Context, params CreateParams) (string, error)
}

// AccountLookup abstracts the directory for testability.
type AccountLookup interface {
	Lookup(ctx context.Context, addr string) (Account, error)
}

// Dispatch is one unit of fan-out: an in-app notification plus, when the
// recipient has a registered email, one transactional email.
type Dispatch struct {
	To           string
	Type         string
	Title        string
	Message      string
	Priority     Priority
	ActionURL    string
	Payload      map[string]any
	EmailSubject string
	EmailBody    string
}

// Dispatcher performs the two-step delivery effect. The in-app write is the
// authoritative step: an email failure is logged and swallowed so a transport
// outage never blocks in-app delivery.
type Dispatcher struct {
	sink   NotificationCreator
	users  AccountLookup
	mailer Mailer
}

// NewDispatcher wires the shared dispatch path used by the scanner, digest
// and dispute notifier.
func NewDispatcher(sink NotificationCreator, users AccountLookup, mailer Mailer) *Dispatcher {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Dispatcher{sink: sink, users: users, mailer: mailer}
}

// Send persists the notification, then attempts the email leg. Only a failed
// notification insert fails the dispatch.
func (d *Dispatcher) Send(ctx context.Context, msg Dispatch) error {
	if _, err := d.sink.Create(ctx, CreateParams{
		UserAddress: msg.To,
		Type:        msg.Type,
		Title:       msg.Title,
		Message:     msg.Message,
		Priority:    msg.Priority,
		ActionURL:   msg.ActionURL,
		Payload:     msg.Payload,
	}); err != nil {
		return err
	}

	account, err := d.users.Lookup(ctx, msg.To)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			slog.WarnContext(ctx, "account lookup failed, skipping email leg", "to", msg.To, "error", err)
		}
		return nil
	}
	if !account.HasEmail() {
		return nil
	}

	subject := msg.EmailSubject
	if subject == "" {
		subject = msg.Title
	}
	// Message text may carry user-supplied content (milestone descriptions,
	// dispute reasons), so it is escaped before landing in HTML.
	body := msg.EmailBody
	if body == "" {
		body = "<p>" + html.EscapeString(msg.Message) + "</p>"
	}

	if err := d.mailer.Send(ctx, subject, body, account.Email); err != nil {
		slog.WarnContext(ctx, "email send failed", "to", msg.To, "email", account.Email, "type", msg.Type, "error", err)
	}
	return nil
}
