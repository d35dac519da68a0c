package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalStatus represents the state of a discount approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
	ApprovalStatusApplied  ApprovalStatus = "APPLIED"
)

func (s ApprovalStatus) String() string { return string(s) }

func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusApplied:
		return true
	}
	return false
}

// IsResolved reports whether the approval reached a terminal state.
// Resolved approvals never transition again.
func (s ApprovalStatus) IsResolved() bool {
	return s != ApprovalStatusPending
}

// ApprovalTier is the authority level required to resolve an approval.
type ApprovalTier string

const (
	TierManager ApprovalTier = "MANAGER"
	TierAdmin   ApprovalTier = "ADMIN"
)

func (t ApprovalTier) IsValid() bool {
	return t == TierManager || t == TierAdmin
}

// Role is the authority tier of an internal CRM actor.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

func ParseRoleFromString(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return r, nil
	}
	return "", fmt.Errorf("%w: invalid role %q", ErrValidation, s)
}

// DiscountApproval is a request to exceed a configured discount threshold.
// While one is pending its quotation is edit-locked; only one may be open
// per quotation at a time.
type DiscountApproval struct {
	ID               string          `gorm:"type:uuid;primaryKey"`
	QuotationID      string          `gorm:"type:uuid;not null"`
	RequesterID      string          `gorm:"type:uuid;not null"`
	ApproverID       *string         `gorm:"type:uuid"`
	Status           ApprovalStatus  `gorm:"type:varchar(20);not null"`
	DiscountPercent  decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	ThresholdCrossed decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	Tier             ApprovalTier    `gorm:"type:varchar(10);not null"`
	Escalated        bool            `gorm:"not null;default:false"`
	Reason           string          `gorm:"type:text"`
	Comments         string          `gorm:"type:text"`
	ResolvedAt       *time.Time      `gorm:"type:timestamptz"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CanBeActedOnBy applies the authorization rule for resolving an approval:
// an admin may always act; a manager may act on manager-tier approvals that
// are unassigned or assigned to them; anyone else must be the assigned
// approver.
func (a *DiscountApproval) CanBeActedOnBy(actorID string, role Role) bool {
	if role == RoleAdmin {
		return true
	}
	if role == RoleManager && a.Tier == TierManager {
		return a.ApproverID == nil || *a.ApproverID == actorID
	}
	return a.ApproverID != nil && *a.ApproverID == actorID
}
