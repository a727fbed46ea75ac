package dispute

import "time"

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusMediation   Status = "mediation"
	StatusArbitration Status = "arbitration"
	StatusResolved    Status = "resolved"
)

// Ruling is the outcome of a resolved dispute.
type Ruling string

const (
	RulingBuyer  Ruling = "buyer"
	RulingSeller Ruling = "seller"
	RulingSplit  Ruling = "split"
)

// Record mirrors the disputes table.
type Record struct {
	ID                string
	DealID            string
	FilerAddress      string
	RespondentAddress string
	Reason            string
	Status            Status
	Ruling            *Ruling
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// Transition names an explicit workflow event on a dispute. The external
// workflow fires each transition exactly once; the notifier carries no dedup
// state of its own.
type Transition string

const (
	TransitionOpened            Transition = "opened"
	TransitionMediation         Transition = "mediation"
	TransitionArbitration       Transition = "arbitration"
	TransitionResolved          Transition = "resolved"
	TransitionEvidenceSubmitted Transition = "evidence_submitted"
)

// Event is the payload the external workflow hands to the notifier.
type Event struct {
	Transition Transition
	Dispute    Record
	// Actor is the wallet address that caused the transition. Required for
	// evidence_submitted so the notifier can target the other party.
	Actor string
}
