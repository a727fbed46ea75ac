package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dealflow/deal"
	"dealflow/notify"
)

const (
	activityWindow = 24 * time.Hour
	deadlineWindow = 7 * 24 * time.Hour

	defaultParallelism = 4
)

// UserSource lists the accounts that have the daily digest enabled.
type UserSource interface {
	ListDigestUsers(ctx context.Context) ([]notify.Account, error)
}

// DealSource is the subset of the deal repository the aggregator reads.
type DealSource interface {
	ActiveForUser(ctx context.Context, addr string) ([]deal.Deal, error)
	UnreadMessageCount(ctx context.Context, addr string) (int, error)
	UpcomingMilestoneCount(ctx context.Context, addr string, now time.Time, window time.Duration) (int, error)
	RecentTimelineEvents(ctx context.Context, addr string, since time.Time, limit int) ([]deal.TimelineEvent, error)
}

// DisputeSource counts a user's unresolved disputes.
type DisputeSource interface {
	ActiveCountForUser(ctx context.Context, addr string) (int, error)
}

// Sender delivers one notification plus optional email.
type Sender interface {
	Send(ctx context.Context, msg notify.Dispatch) error
}

// Aggregator composes the once-a-day per-user activity summary. It carries
// no dedup ledger: the scheduler contract guarantees one invocation per
// calendar day.
type Aggregator struct {
	users       UserSource
	deals       DealSource
	disputes    DisputeSource
	dispatcher  Sender
	parallelism int
}

// NewAggregator wires the digest aggregator.
func NewAggregator(users UserSource, deals DealSource, disputes DisputeSource, dispatcher Sender) *Aggregator {
	return &Aggregator{
		users:       users,
		deals:       deals,
		disputes:    disputes,
		dispatcher:  dispatcher,
		parallelism: defaultParallelism,
	}
}

// WithParallelism bounds how many users are processed concurrently.
func (a *Aggregator) WithParallelism(n int) *Aggregator {
	if n > 0 {
		a.parallelism = n
	}
	return a
}

// Run composes and delivers digests for every enabled user against the
// injected now. One user's failure is logged and never aborts the batch.
func (a *Aggregator) Run(ctx context.Context, now time.Time) (Report, error) {
	accounts, err := a.users.ListDigestUsers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("digest: list users: %w", err)
	}

	var (
		mu  sync.Mutex
		rep = Report{Users: len(accounts)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			outcome := a.runForUser(gctx, account, now)
			mu.Lock()
			switch outcome {
			case outcomeSent:
				rep.Sent++
			case outcomeSuppressed:
				rep.Suppressed++
			case outcomeFailed:
				rep.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	// Workers swallow their own errors, so Wait only propagates ctx cancellation.
	if err := g.Wait(); err != nil {
		return rep, fmt.Errorf("digest: run: %w", err)
	}

	return rep, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSuppressed
	outcomeFailed
)

func (a *Aggregator) runForUser(ctx context.Context, account notify.Account, now time.Time) outcome {
	if !account.DigestEnabled {
		return outcomeSuppressed
	}

	stats, err := a.Compose(ctx, account.WalletAddress, now)
	if err != nil {
		slog.ErrorContext(ctx, "digest composition failed", "user", account.WalletAddress, "error", err)
		return outcomeFailed
	}
	if !stats.Deliverable() {
		return outcomeSuppressed
	}

	subject, body := renderEmail(account, stats, now)
	msg := notify.Dispatch{
		To:           account.WalletAddress,
		Type:         "daily_digest",
		Title:        subject,
		Message:      summaryLine(stats),
		Priority:     notify.PriorityLow,
		ActionURL:    "/dashboard",
		Payload:      payload(stats),
		EmailSubject: subject,
		EmailBody:    body,
	}
	if err := a.dispatcher.Send(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "digest dispatch failed", "user", account.WalletAddress, "error", err)
		return outcomeFailed
	}
	return outcomeSent
}

// Compose gathers one user's digest stats. Exported so operators can preview
// a digest without sending it.
func (a *Aggregator) Compose(ctx context.Context, addr string, now time.Time) (Stats, error) {
	var stats Stats

	activeDeals, err := a.deals.ActiveForUser(ctx, addr)
	if err != nil {
		return Stats{}, err
	}
	stats.ActiveDeals = len(activeDeals)

	for _, d := range activeDeals {
		role, ok := d.RoleOf(addr)
		if !ok {
			continue
		}
		if !d.Stage.Valid() {
			slog.WarnContext(ctx, "deal has unmapped stage, treating as no action",
				"deal_id", d.ID, "stage", string(d.Stage))
		}
		action, pending := deal.NextAction(d.Stage, role)
		if pending {
			stats.PendingActions++
		}
		stats.Deals = append(stats.Deals, DealSummary{
			DealID:     d.ID,
			Reference:  d.Reference,
			Title:      d.Title,
			Role:       role,
			Stage:      d.Stage,
			NextAction: action,
		})
	}

	if stats.UnreadMessages, err = a.deals.UnreadMessageCount(ctx, addr); err != nil {
		return Stats{}, err
	}
	if stats.UpcomingDeadlines, err = a.deals.UpcomingMilestoneCount(ctx, addr, now, deadlineWindow); err != nil {
		return Stats{}, err
	}
	if stats.ActiveDisputes, err = a.disputes.ActiveCountForUser(ctx, addr); err != nil {
		return Stats{}, err
	}

	events, err := a.deals.RecentTimelineEvents(ctx, addr, now.Add(-activityWindow), recentActivityCap)
	if err != nil {
		return Stats{}, err
	}
	for _, ev := range events {
		stats.RecentActivity = append(stats.RecentActivity, ActivityItem{
			DealReference: ev.Reference,
			Label:         eventLabel(ev.Type),
			OccurredAt:    ev.CreatedAt,
		})
	}

	stats.Alerts = deriveAlerts(stats)
	return stats, nil
}

func deriveAlerts(stats Stats) []string {
	var alerts []string
	if stats.PendingActions > 0 {
		alerts = append(alerts, fmt.Sprintf("%d deal(s) requiring your action", stats.PendingActions))
	}
	if stats.UpcomingDeadlines > 0 {
		alerts = append(alerts, fmt.Sprintf("%d deadline(s) this week", stats.UpcomingDeadlines))
	}
	if stats.ActiveDisputes > 0 {
		alerts = append(alerts, fmt.Sprintf("%d active dispute(s)", stats.ActiveDisputes))
	}
	return alerts
}

func summaryLine(stats Stats) string {
	return fmt.Sprintf("%d active deal(s), %d pending action(s), %d unread message(s), %d deadline(s) this week.",
		stats.ActiveDeals, stats.PendingActions, stats.UnreadMessages, stats.UpcomingDeadlines)
}

func payload(stats Stats) map[string]any {
	return map[string]any{
		"active_deals":       stats.ActiveDeals,
		"pending_actions":    stats.PendingActions,
		"unread_messages":    stats.UnreadMessages,
		"upcoming_deadlines": stats.UpcomingDeadlines,
		"active_disputes":    stats.ActiveDisputes,
		"alerts":             stats.Alerts,
	}
}
