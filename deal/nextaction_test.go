package deal

import "testing"

func TestNextActionTable(t *testing.T) {
	cases := []struct {
		stage  Stage
		role   Role
		action string
	}{
		{StageAwaitingPayment, RoleBuyer, "Fund the escrow deposit"},
		{StageAwaitingPayment, RoleSeller, ""},
		{StageAwaitingShipment, RoleSeller, "Ship the goods and post tracking"},
		{StageAwaitingShipment, RoleBuyer, ""},
		{StageInTransit, RoleBuyer, "Confirm receipt of the shipment"},
		{StageInTransit, RoleSeller, ""},
		{StageInspection, RoleBuyer, "Complete the inspection checklist"},
		{StagePendingApproval, RoleBuyer, "Approve the completed milestone"},
		{StageDisputed, RoleBuyer, "Respond to the open dispute"},
		{StageDisputed, RoleSeller, "Respond to the open dispute"},
		{StageDraft, RoleBuyer, ""},
		{StageFunded, RoleSeller, ""},
		{StageCompleted, RoleBuyer, ""},
		{StageCancelled, RoleSeller, ""},
	}

	for _, tc := range cases {
		action, pending := NextAction(tc.stage, tc.role)
		if action != tc.action {
			t.Errorf("NextAction(%s, %s) = %q, want %q", tc.stage, tc.role, action, tc.action)
		}
		if pending != (tc.action != "") {
			t.Errorf("NextAction(%s, %s) pending = %v, want %v", tc.stage, tc.role, pending, tc.action != "")
		}
	}
}

// Every stage in the enum must resolve for both roles without panicking, and
// an out-of-enum stage must quietly resolve to no action.
func TestNextActionTotal(t *testing.T) {
	for _, stage := range AllStages {
		for _, role := range []Role{RoleBuyer, RoleSeller} {
			action, pending := NextAction(stage, role)
			if pending && action == "" {
				t.Errorf("NextAction(%s, %s) pending but empty action", stage, role)
			}
			if !pending && action != "" {
				t.Errorf("NextAction(%s, %s) not pending but action %q", stage, role, action)
			}
		}
	}

	if action, pending := NextAction(Stage("mystery"), RoleBuyer); pending || action != "" {
		t.Errorf("unmapped stage resolved to (%q, %v), want no action", action, pending)
	}
}

func TestRoleOf(t *testing.T) {
	d := Deal{BuyerAddress: "0xbuyer", SellerAddress: "0xseller"}

	if role, ok := d.RoleOf("0xbuyer"); !ok || role != RoleBuyer {
		t.Errorf("RoleOf buyer = (%s, %v)", role, ok)
	}
	if role, ok := d.RoleOf("0xseller"); !ok || role != RoleSeller {
		t.Errorf("RoleOf seller = (%s, %v)", role, ok)
	}
	if _, ok := d.RoleOf("0xstranger"); ok {
		t.Error("RoleOf stranger should not resolve")
	}
	if got := d.Counterparty("0xbuyer"); got != "0xseller" {
		t.Errorf("Counterparty(buyer) = %s", got)
	}
}
