package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dealflow/deal"
	"dealflow/notify"
)

// ErrUnknownTransition signals an event the notifier has no fan-out for.
var ErrUnknownTransition = errors.New("dispute: unknown transition")

// ErrMissingRuling signals a resolved event without a ruling attached.
var ErrMissingRuling = errors.New("dispute: resolved event missing ruling")

// DealReader resolves the deal a dispute belongs to.
type DealReader interface {
	GetByID(ctx context.Context, id string) (deal.Deal, error)
}

// AdminLister lists platform admin accounts for the opened fan-out.
type AdminLister interface {
	ListAdmins(ctx context.Context) ([]notify.Account, error)
}

// Sender delivers one notification plus optional email.
type Sender interface {
	Send(ctx context.Context, msg notify.Dispatch) error
}

// Notifier fans dispute workflow transitions out to the filing party, the
// respondent, and platform admins. Each transition arrives exactly once from
// the external workflow, so there is no dedup ledger here.
type Notifier struct {
	deals      DealReader
	admins     AdminLister
	dispatcher Sender
}

// NewNotifier wires the escalation notifier.
func NewNotifier(deals DealReader, admins AdminLister, dispatcher Sender) *Notifier {
	return &Notifier{deals: deals, admins: admins, dispatcher: dispatcher}
}

// OnTransition reacts to one dispute workflow event. Per-recipient dispatch
// failures are logged and do not abort the remaining fan-out; only a
// malformed event or an unresolvable deal is an error.
func (n *Notifier) OnTransition(ctx context.Context, ev Event) error {
	d, err := n.deals.GetByID(ctx, ev.Dispute.DealID)
	if err != nil {
		return fmt.Errorf("dispute: resolve deal %s for transition %s: %w", ev.Dispute.DealID, ev.Transition, err)
	}

	switch ev.Transition {
	case TransitionOpened:
		return n.notifyOpened(ctx, ev.Dispute, d)
	case TransitionMediation:
		return n.notifyBothParties(ctx, ev.Dispute, d, notify.PriorityMedium, "dispute_mediation",
			"Dispute moved to mediation",
			fmt.Sprintf("The dispute on deal %s has entered mediation. A neutral mediator will help both parties reach an agreement.", d.Reference))
	case TransitionArbitration:
		return n.notifyBothParties(ctx, ev.Dispute, d, notify.PriorityHigh, "dispute_arbitration",
			"Dispute escalated to arbitration",
			fmt.Sprintf("The dispute on deal %s has been escalated to arbitration. The arbitrator's ruling will be binding on both parties.", d.Reference))
	case TransitionResolved:
		return n.notifyResolved(ctx, ev.Dispute, d)
	case TransitionEvidenceSubmitted:
		return n.notifyEvidence(ctx, ev, d)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransition, ev.Transition)
	}
}

func (n *Notifier) notifyOpened(ctx context.Context, rec Record, d deal.Deal) error {
	n.send(ctx, rec, notify.Dispatch{
		To:        rec.FilerAddress,
		Type:      "dispute_opened",
		Title:     "Your dispute was filed",
		Message:   fmt.Sprintf("Your dispute on deal %s has been filed. The other party has been asked to respond.", d.Reference),
		Priority:  notify.PriorityMedium,
		ActionURL: dealDisputeURL(d.ID),
		Payload:   disputePayload(rec),
	})

	n.send(ctx, rec, notify.Dispatch{
		To:        rec.RespondentAddress,
		Type:      "dispute_opened",
		Title:     "A dispute was filed against you",
		Message:   fmt.Sprintf("A dispute was opened on deal %s. Reason given: %s. Please respond with your side of the events.", d.Reference, rec.Reason),
		Priority:  notify.PriorityHigh,
		ActionURL: dealDisputeURL(d.ID),
		Payload:   disputePayload(rec),
	})

	admins, err := n.admins.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("dispute: list admins: %w", err)
	}
	for _, admin := range admins {
		n.send(ctx, rec, notify.Dispatch{
			To:        admin.WalletAddress,
			Type:      "dispute_opened",
			Title:     "New dispute requires review",
			Message:   fmt.Sprintf("A dispute was opened on deal %s with %.2f at risk.", d.Reference, d.TotalAmount),
			Priority:  notify.PriorityHigh,
			ActionURL: dealDisputeURL(d.ID),
			Payload:   disputePayload(rec),
		})
	}
	return nil
}

func (n *Notifier) notifyBothParties(ctx context.Context, rec Record, d deal.Deal, prio notify.Priority, typ, title, message string) error {
	for _, to := range []string{rec.FilerAddress, rec.RespondentAddress} {
		n.send(ctx, rec, notify.Dispatch{
			To:        to,
			Type:      typ,
			Title:     title,
			Message:   message,
			Priority:  prio,
			ActionURL: dealDisputeURL(d.ID),
			Payload:   disputePayload(rec),
		})
	}
	return nil
}

func (n *Notifier) notifyResolved(ctx context.Context, rec Record, d deal.Deal) error {
	if rec.Ruling == nil {
		return ErrMissingRuling
	}
	ruling := *rec.Ruling

	for _, to := range []string{rec.FilerAddress, rec.RespondentAddress} {
		n.send(ctx, rec, notify.Dispatch{
			To:        to,
			Type:      "dispute_resolved",
			Title:     "Dispute resolved",
			Message:   resolvedMessage(d.Reference, ruling, wins(ruling, to, rec)),
			Priority:  notify.PriorityHigh,
			ActionURL: dealDisputeURL(d.ID),
			Payload:   disputePayload(rec),
		})
	}
	return nil
}

func (n *Notifier) notifyEvidence(ctx context.Context, ev Event, d deal.Deal) error {
	rec := ev.Dispute
	other := rec.RespondentAddress
	if ev.Actor == rec.RespondentAddress {
		other = rec.FilerAddress
	}

	n.send(ctx, rec, notify.Dispatch{
		To:        other,
		Type:      "dispute_evidence",
		Title:     "New evidence submitted",
		Message:   fmt.Sprintf("The other party submitted new evidence in the dispute on deal %s. Review it and respond if needed.", d.Reference),
		Priority:  notify.PriorityMedium,
		ActionURL: dealDisputeURL(d.ID),
		Payload:   disputePayload(rec),
	})
	return nil
}

func (n *Notifier) send(ctx context.Context, rec Record, msg notify.Dispatch) {
	if err := n.dispatcher.Send(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "dispute notification dispatch failed",
			"dispute_id", rec.ID, "deal_id", rec.DealID, "to", msg.To, "type", msg.Type, "error", err)
	}
}

// wins applies the resolution outcome to a recipient: the filer wins a buyer
// ruling, the respondent wins a seller ruling, and a split favours both.
func wins(ruling Ruling, recipient string, rec Record) bool {
	switch ruling {
	case RulingBuyer:
		return recipient == rec.FilerAddress
	case RulingSeller:
		return recipient == rec.RespondentAddress
	case RulingSplit:
		return true
	default:
		return false
	}
}

func resolvedMessage(reference string, ruling Ruling, won bool) string {
	if ruling == RulingSplit {
		return fmt.Sprintf("The dispute on deal %s was resolved with a split ruling. The escrowed funds will be divided between both parties.", reference)
	}
	if won {
		return fmt.Sprintf("The dispute on deal %s was resolved in your favor. The escrowed funds will be released accordingly.", reference)
	}
	return fmt.Sprintf("The dispute on deal %s was resolved against you. The escrowed funds will be released to the other party.", reference)
}

func dealDisputeURL(dealID string) string {
	return "/deals/" + dealID + "/dispute"
}

func disputePayload(rec Record) map[string]any {
	p := map[string]any{
		"dispute_id": rec.ID,
		"deal_id":    rec.DealID,
		"status":     string(rec.Status),
	}
	if rec.Ruling != nil {
		p["ruling"] = string(*rec.Ruling)
	}
	return p
}
