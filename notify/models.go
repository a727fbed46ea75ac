package notify

import "time"

// Priority ranks how urgently a notification should surface in the inbox.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Notification mirrors the notifications table. Rows are created by this
// engine and mutated only by the external read path (marking read).
type Notification struct {
	ID          string
	UserAddress string
	Type        string
	Title       string
	Message     string
	Priority    Priority
	ActionURL   string
	Payload     map[string]any
	Read        bool
	CreatedAt   time.Time
}

// CreateParams enumerates the fields callers supply when persisting a
// notification.
type CreateParams struct {
	UserAddress string
	Type        string
	Title       string
	Message     string
	Priority    Priority
	ActionURL   string
	Payload     map[string]any
}

// Account is the engine's view of a platform user: just enough to route a
// notification and decide whether the email leg applies.
type Account struct {
	WalletAddress string
	Email         string
	FullName      string
	DigestEnabled bool
}

// HasEmail reports whether the email leg of a dispatch applies.
func (a Account) HasEmail() bool {
	return a.Email != ""
}
