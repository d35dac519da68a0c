package domain

import "testing"

func TestDiscountApprovalCanBeActedOnBy(t *testing.T) {
	t.Parallel()

	managerID := "mgr-1"
	otherID := "usr-9"

	tests := []struct {
		name     string
		approval DiscountApproval
		actorID  string
		role     Role
		want     bool
	}{
		{
			name:     "admin always acts",
			approval: DiscountApproval{Tier: TierAdmin, ApproverID: &otherID},
			actorID:  "admin-1",
			role:     RoleAdmin,
			want:     true,
		},
		{
			name:     "manager on unassigned manager tier",
			approval: DiscountApproval{Tier: TierManager},
			actorID:  managerID,
			role:     RoleManager,
			want:     true,
		},
		{
			name:     "manager assigned to themselves",
			approval: DiscountApproval{Tier: TierManager, ApproverID: &managerID},
			actorID:  managerID,
			role:     RoleManager,
			want:     true,
		},
		{
			name:     "manager assigned to someone else",
			approval: DiscountApproval{Tier: TierManager, ApproverID: &otherID},
			actorID:  managerID,
			role:     RoleManager,
			want:     false,
		},
		{
			name:     "manager cannot act on admin tier",
			approval: DiscountApproval{Tier: TierAdmin},
			actorID:  managerID,
			role:     RoleManager,
			want:     false,
		},
		{
			name:     "plain user only when assigned",
			approval: DiscountApproval{Tier: TierManager, ApproverID: &otherID},
			actorID:  otherID,
			role:     RoleUser,
			want:     true,
		},
		{
			name:     "plain user unassigned",
			approval: DiscountApproval{Tier: TierManager},
			actorID:  otherID,
			role:     RoleUser,
			want:     false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.approval.CanBeActedOnBy(tt.actorID, tt.role); got != tt.want {
				t.Fatalf("CanBeActedOnBy(%s, %s) = %v, want %v", tt.actorID, tt.role, got, tt.want)
			}
		})
	}
}

func TestApprovalStatusIsResolved(t *testing.T) {
	t.Parallel()

	if ApprovalStatusPending.IsResolved() {
		t.Error("pending should not be resolved")
	}
	for _, s := range []ApprovalStatus{ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusApplied} {
		if !s.IsResolved() {
			t.Errorf("%s should be resolved", s)
		}
	}
}
