package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a quotation.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusSent     Status = "SENT"
	StatusViewed   Status = "VIEWED"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusViewed, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Decision is a client response to a quotation.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

func (d Decision) IsValid() bool {
	return d == DecisionAccept || d == DecisionReject
}

func ParseDecisionFromString(s string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: invalid decision %q", ErrValidation, s)
	}
	return d, nil
}

func (d Decision) Status() Status {
	if d == DecisionAccept {
		return StatusAccepted
	}
	return StatusRejected
}

// Quotation is a priced offer sent to a client.
type Quotation struct {
	ID              string          `gorm:"type:uuid;primaryKey"`
	ClientID        string          `gorm:"type:uuid;not null"`
	ClientEmail     string          `gorm:"type:varchar(255);not null"`
	ClientTaxCode   string          `gorm:"type:varchar(10)"`
	OwnerID         string          `gorm:"type:uuid;not null"`
	OwnerEmail      string          `gorm:"type:varchar(255);not null"`
	Status          Status          `gorm:"type:varchar(20);not null"`
	DocumentNumber  string          `gorm:"type:varchar(40)"`
	IssueDate       time.Time       `gorm:"type:date"`
	ValidUntil      time.Time       `gorm:"type:date"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Discount        decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	Tax             decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	Total           decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	Notes           string          `gorm:"type:text"`
	ApprovalLocked  bool            `gorm:"not null;default:false"`
	ApprovalID      *string         `gorm:"type:uuid"`
	Lines           []LineItem      `gorm:"foreignKey:QuotationID"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineItem is a single priced row on a quotation. Amount already reflects
// the per-line discount.
type LineItem struct {
	ID           string          `gorm:"type:uuid;primaryKey"`
	QuotationID  string          `gorm:"type:uuid;not null"`
	Description  string          `gorm:"type:varchar(500);not null"`
	Quantity     decimal.Decimal `gorm:"type:decimal(12,3);not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	LineDiscount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	CreatedAt    time.Time
}

// IsExpired reports whether the validity window has passed. Expiry is
// derived, never stored as a transition.
func (q *Quotation) IsExpired(now time.Time) bool {
	if q.ValidUntil.IsZero() {
		return false
	}
	today := now.UTC().Truncate(24 * time.Hour)
	return q.ValidUntil.UTC().Truncate(24 * time.Hour).Before(today)
}

// Editable reports whether field edits are allowed: only in Draft and not
// while locked under a pending discount approval.
func (q *Quotation) Editable() bool {
	return q.Status == StatusDraft && !q.ApprovalLocked
}

// CanTransitionTo validates a status transition on the view/response path.
// Send/resend is handled by the orchestrator and re-enters SENT directly.
func (q *Quotation) CanTransitionTo(next Status) bool {
	if q.Status.IsTerminal() {
		return false
	}
	switch next {
	case StatusViewed:
		return q.Status == StatusSent
	case StatusAccepted, StatusRejected:
		return q.Status == StatusSent || q.Status == StatusViewed
	case StatusSent:
		return true
	}
	return false
}

func (q *Quotation) Validate() error {
	if strings.TrimSpace(q.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrValidation)
	}
	if strings.TrimSpace(q.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if !q.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, q.Status)
	}
	if q.DiscountPercent.IsNegative() || q.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: discount percent must be between 0 and 100", ErrValidation)
	}
	if q.Total.IsNegative() {
		return fmt.Errorf("%w: total must not be negative", ErrValidation)
	}
	return nil
}
