package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"dealflow/deal"
	"dealflow/dispute"
	"dealflow/notify"
)

const (
	milestoneLookahead = 7 * 24 * time.Hour
	paymentStaleAfter  = 3 * 24 * time.Hour
	disputeStaleAfter  = 2 * 24 * time.Hour
)

// DealSource is the subset of the deal repository the scanner reads.
type DealSource interface {
	MilestonesDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]deal.DueMilestone, error)
	InStageOlderThan(ctx context.Context, stage deal.Stage, cutoff time.Time) ([]deal.Deal, error)
}

// DisputeSource is the subset of the dispute repository the scanner reads.
type DisputeSource interface {
	PendingOlderThan(ctx context.Context, cutoff time.Time) ([]dispute.Record, error)
}

// Sender delivers one notification plus optional email.
type Sender interface {
	Send(ctx context.Context, msg notify.Dispatch) error
}

// Report summarises one scan tick for the operator log.
type Report struct {
	Dispatched int
	Skipped    int
	Failed     int
}

// Scanner emits deadline reminders, at most once per (deal, item, tier).
// It is driven by an external scheduler and holds no timer of its own.
type Scanner struct {
	deals      DealSource
	disputes   DisputeSource
	ledger     Ledger
	dispatcher Sender
}

// NewScanner wires the deadline scanner.
func NewScanner(deals DealSource, disputes DisputeSource, ledger Ledger, dispatcher Sender) *Scanner {
	return &Scanner{deals: deals, disputes: disputes, ledger: ledger, dispatcher: dispatcher}
}

// Run executes one scan tick against the injected now. A failure in one
// phase or one item never aborts the rest of the tick; per-item failures are
// logged and naturally retried next tick because the ledger entry is only
// written after a successful dispatch.
func (s *Scanner) Run(ctx context.Context, now time.Time) (Report, error) {
	var rep Report
	var errs []error

	if err := s.scanMilestones(ctx, now, &rep); err != nil {
		errs = append(errs, err)
	}
	if err := s.scanStalePayments(ctx, now, &rep); err != nil {
		errs = append(errs, err)
	}
	if err := s.scanUnansweredDisputes(ctx, now, &rep); err != nil {
		errs = append(errs, err)
	}

	return rep, errors.Join(errs...)
}

func (s *Scanner) scanMilestones(ctx context.Context, now time.Time, rep *Report) error {
	milestones, err := s.deals.MilestonesDueWithin(ctx, now, milestoneLookahead)
	if err != nil {
		return fmt.Errorf("reminder: scan milestones: %w", err)
	}

	for _, m := range milestones {
		days := daysUntil(now, m.DueDate)
		tier, prio, ok := milestoneTier(days)
		if !ok {
			rep.Skipped++
			continue
		}

		msg := notify.Dispatch{
			To:        m.SellerAddress,
			Type:      "deadline_reminder",
			Title:     milestoneTitle(days),
			Message:   fmt.Sprintf("Milestone %q on deal %s is due in %d day(s). Amount: %.2f.", m.Description, m.DealReference, days, m.Amount),
			Priority:  prio,
			ActionURL: "/deals/" + m.DealID,
			Payload: map[string]any{
				"deal_id":      m.DealID,
				"milestone_id": m.ID,
				"tier":         string(tier),
				"due_date":     m.DueDate.UTC(),
			},
		}
		s.dispatch(ctx, m.DealID, m.ID, tier, now, msg, rep)
	}
	return nil
}

func (s *Scanner) scanStalePayments(ctx context.Context, now time.Time, rep *Report) error {
	deals, err := s.deals.InStageOlderThan(ctx, deal.StageAwaitingPayment, now.Add(-paymentStaleAfter))
	if err != nil {
		return fmt.Errorf("reminder: scan stale payments: %w", err)
	}

	for _, d := range deals {
		msg := notify.Dispatch{
			To:        d.BuyerAddress,
			Type:      "payment_reminder",
			Title:     "Escrow funding overdue",
			Message:   fmt.Sprintf("Deal %s has been waiting for escrow funding for more than 3 days. Fund the deposit to keep the deal moving.", d.Reference),
			Priority:  notify.PriorityHigh,
			ActionURL: "/deals/" + d.ID,
			Payload: map[string]any{
				"deal_id": d.ID,
				"tier":    string(Tier3Day),
			},
		}
		s.dispatch(ctx, d.ID, string(TierPayment), Tier3Day, now, msg, rep)
	}
	return nil
}

func (s *Scanner) scanUnansweredDisputes(ctx context.Context, now time.Time, rep *Report) error {
	open, err := s.disputes.PendingOlderThan(ctx, now.Add(-disputeStaleAfter))
	if err != nil {
		return fmt.Errorf("reminder: scan unanswered disputes: %w", err)
	}

	for _, rec := range open {
		msg := notify.Dispatch{
			To:        rec.RespondentAddress,
			Type:      "dispute_response_reminder",
			Title:     "Dispute response overdue",
			Message:   "A dispute filed against you has been waiting more than 2 days for a response. Respond now to avoid escalation.",
			Priority:  notify.PriorityCritical,
			ActionURL: "/deals/" + rec.DealID + "/dispute",
			Payload: map[string]any{
				"deal_id":    rec.DealID,
				"dispute_id": rec.ID,
				"tier":       string(TierResponse),
			},
		}
		s.dispatch(ctx, rec.DealID, rec.ID, TierResponse, now, msg, rep)
	}
	return nil
}

// dispatch runs the per-item pipeline: ledger pre-check, notification plus
// email, then the ledger insert as the atomic commit point. A duplicate
// insert from an overlapping run counts as sent, not as a failure.
func (s *Scanner) dispatch(ctx context.Context, dealID, itemID string, tier Tier, now time.Time, msg notify.Dispatch, rep *Report) {
	sent, err := s.ledger.Exists(ctx, dealID, itemID, tier)
	if err != nil {
		slog.ErrorContext(ctx, "ledger check failed", "deal_id", dealID, "item_id", itemID, "tier", tier, "error", err)
		rep.Failed++
		return
	}
	if sent {
		rep.Skipped++
		return
	}

	if err := s.dispatcher.Send(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "reminder dispatch failed", "deal_id", dealID, "item_id", itemID, "tier", tier, "to", msg.To, "error", err)
		rep.Failed++
		return
	}

	if err := s.ledger.Insert(ctx, dealID, itemID, tier, now); err != nil {
		if errors.Is(err, ErrAlreadySent) {
			// Lost the race against an overlapping run; the reminder went out.
			rep.Skipped++
			return
		}
		slog.ErrorContext(ctx, "ledger insert failed, reminder will retry next tick",
			"deal_id", dealID, "item_id", itemID, "tier", tier, "error", err)
		rep.Failed++
		return
	}

	rep.Dispatched++
}

// daysUntil counts calendar-ish days to the due date, rounding partial days
// up so a milestone due in 36 hours reads as 2 days out.
func daysUntil(now, due time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

func milestoneTier(days int) (Tier, notify.Priority, bool) {
	switch {
	case days <= 1:
		return Tier1Day, notify.PriorityCritical, true
	case days <= 3:
		return Tier3Day, notify.PriorityHigh, true
	case days <= 7:
		return Tier7Day, notify.PriorityMedium, true
	default:
		return "", "", false
	}
}

func milestoneTitle(days int) string {
	if days <= 1 {
		return "Milestone due tomorrow"
	}
	return fmt.Sprintf("Milestone due in %d days", days)
}
