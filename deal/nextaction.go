package deal

// NextAction resolves the single required action for the given role at the
// given stage. The second return is false when nothing is pending for that
// role. The switch is exhaustive over the stage enum; an unrecognised stage
// resolves to no action so a bad row can never take down a batch — callers
// that care should check Stage.Valid and log.
func NextAction(stage Stage, role Role) (string, bool) {
	switch stage {
	case StageAwaitingPayment:
		if role == RoleBuyer {
			return "Fund the escrow deposit", true
		}
	case StageAwaitingShipment:
		if role == RoleSeller {
			return "Ship the goods and post tracking", true
		}
	case StageInTransit:
		if role == RoleBuyer {
			return "Confirm receipt of the shipment", true
		}
	case StageInspection:
		if role == RoleBuyer {
			return "Complete the inspection checklist", true
		}
	case StagePendingApproval:
		if role == RoleBuyer {
			return "Approve the completed milestone", true
		}
	case StageDisputed:
		return "Respond to the open dispute", true
	case StageDraft, StageFunded, StageCompleted, StageCancelled:
		// Nothing pending for either side.
	}
	return "", false
}
