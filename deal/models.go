package deal

import "time"

// Stage represents the lifecycle state of a trade deal. Stages are advanced
// exclusively by the external escrow workflow; this engine only reads them.
type Stage string

const (
	StageDraft            Stage = "draft"
	StageAwaitingPayment  Stage = "awaiting_payment"
	StageFunded           Stage = "funded"
	StageAwaitingShipment Stage = "awaiting_shipment"
	StageInTransit        Stage = "in_transit"
	StageInspection       Stage = "inspection"
	StagePendingApproval  Stage = "pending_approval"
	StageCompleted        Stage = "completed"
	StageCancelled        Stage = "cancelled"
	StageDisputed         Stage = "disputed"
)

// AllStages enumerates every stage the external workflow can produce.
var AllStages = []Stage{
	StageDraft,
	StageAwaitingPayment,
	StageFunded,
	StageAwaitingShipment,
	StageInTransit,
	StageInspection,
	StagePendingApproval,
	StageCompleted,
	StageCancelled,
	StageDisputed,
}

// IsTerminal reports whether the stage ends the deal lifecycle.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// Valid reports whether s is a member of the stage enum.
func (s Stage) Valid() bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

// Role identifies which side of a deal a user is on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Deal mirrors the columns of the deals table read by the engine.
type Deal struct {
	ID            string
	Reference     string
	Title         string
	BuyerAddress  string
	SellerAddress string
	TotalAmount   float64
	Stage         Stage
	CreatedAt     time.Time
}

// RoleOf resolves the role the given wallet address plays in the deal.
func (d Deal) RoleOf(addr string) (Role, bool) {
	switch addr {
	case d.BuyerAddress:
		return RoleBuyer, true
	case d.SellerAddress:
		return RoleSeller, true
	default:
		return "", false
	}
}

// Counterparty returns the other side's address relative to addr.
func (d Deal) Counterparty(addr string) string {
	if addr == d.BuyerAddress {
		return d.SellerAddress
	}
	return d.BuyerAddress
}

// MilestoneStatus tracks delivery progress for a single milestone.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneSkipped    MilestoneStatus = "skipped"
)

// Milestone mirrors the milestones table.
type Milestone struct {
	ID          string
	DealID      string
	Description string
	Amount      float64
	DueDate     time.Time
	Status      MilestoneStatus
	CreatedAt   time.Time
}

// DueMilestone is a milestone joined with the deal context a reminder needs.
type DueMilestone struct {
	Milestone
	DealReference string
	DealTitle     string
	SellerAddress string
}

// TimelineEvent is an immutable business event recorded against a deal.
type TimelineEvent struct {
	ID        int64
	DealID    string
	Reference string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}
