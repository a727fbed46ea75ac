package digest

import (
	"fmt"
	"html"
	"strings"
	"time"

	"dealflow/notify"
)

// eventLabel turns a timeline event type into a short human label for the
// activity preview. Unknown types fall back to a lowercased readable form.
func eventLabel(eventType string) string {
	switch eventType {
	case "STAGE_CHANGED":
		return "Deal stage changed"
	case "MILESTONE_COMPLETED":
		return "Milestone completed"
	case "PAYMENT_RECEIVED":
		return "Payment received"
	case "SHIPMENT_POSTED":
		return "Shipment posted"
	case "DISPUTE_OPENED":
		return "Dispute opened"
	case "DISPUTE_RESOLVED":
		return "Dispute resolved"
	case "MESSAGE_SENT":
		return "New message"
	default:
		return strings.ReplaceAll(strings.ToLower(eventType), "_", " ")
	}
}

func renderEmail(account notify.Account, stats Stats, now time.Time) (subject, body string) {
	subject = fmt.Sprintf("Your deal activity for %s", now.Format("Jan 2, 2006"))

	var b strings.Builder
	name := account.FullName
	if name == "" {
		name = account.WalletAddress
	}
	fmt.Fprintf(&b, "<h2>Daily summary</h2><p>Hello %s,</p>", html.EscapeString(name))

	if len(stats.Alerts) > 0 {
		b.WriteString("<ul>")
		for _, alert := range stats.Alerts {
			fmt.Fprintf(&b, "<li><strong>%s</strong></li>", html.EscapeString(alert))
		}
		b.WriteString("</ul>")
	}

	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(summaryLine(stats)))

	if len(stats.Deals) > 0 {
		b.WriteString("<h3>Your deals</h3><ul>")
		for _, d := range stats.Deals {
			line := fmt.Sprintf("%s — %s (%s)", d.Reference, d.Title, d.Stage)
			if d.NextAction != "" {
				line += " — next: " + d.NextAction
			}
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(line))
		}
		b.WriteString("</ul>")
	}

	if len(stats.RecentActivity) > 0 {
		b.WriteString("<h3>Recent activity</h3><ul>")
		for _, item := range stats.RecentActivity {
			fmt.Fprintf(&b, "<li>%s — %s</li>",
				html.EscapeString(item.DealReference), html.EscapeString(item.Label))
		}
		b.WriteString("</ul>")
	}

	return subject, b.String()
}
