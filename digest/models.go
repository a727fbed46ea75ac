package digest

import (
	"time"

	"dealflow/deal"
)

// recentActivityCap bounds the activity preview in a digest.
const recentActivityCap = 10

// DealSummary is one active deal as presented in the digest, with the next
// action resolved for the digest recipient's role.
type DealSummary struct {
	DealID     string
	Reference  string
	Title      string
	Role       deal.Role
	Stage      deal.Stage
	NextAction string
}

// ActivityItem is one timeline event rendered for the digest preview.
type ActivityItem struct {
	DealReference string
	Label         string
	OccurredAt    time.Time
}

// Stats is the per-user summary computed fresh on every digest run. It is
// never persisted.
type Stats struct {
	ActiveDeals       int
	PendingActions    int
	UnreadMessages    int
	UpcomingDeadlines int
	ActiveDisputes    int
	RecentActivity    []ActivityItem
	Deals             []DealSummary
	Alerts            []string
}

// Deliverable reports whether the digest is worth sending at all.
func (s Stats) Deliverable() bool {
	return s.ActiveDeals > 0 || s.PendingActions > 0 || len(s.Alerts) > 0
}

// Report summarises one digest run for the operator log.
type Report struct {
	Users      int
	Sent       int
	Suppressed int
	Failed     int
}
