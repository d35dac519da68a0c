package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	defaultManagerThreshold = decimal.NewFromInt(10)
	defaultAdminThreshold   = decimal.NewFromInt(25)
)

// ApprovalEscalator runs the tiered discount-approval workflow. A pending
// approval edit-locks its quotation; approvals resolve exactly once and
// may escalate to the admin tier once while pending.
type ApprovalEscalator struct {
	uow              repository.UnitOfWork
	approvals        repository.ApprovalRepository
	logger           *zap.Logger
	managerThreshold decimal.Decimal
	adminThreshold   decimal.Decimal
	now              func() time.Time
}

func NewApprovalEscalator(
	uow repository.UnitOfWork,
	approvals repository.ApprovalRepository,
	managerThreshold, adminThreshold decimal.Decimal,
	logger *zap.Logger,
) (*ApprovalEscalator, error) {
	if uow == nil {
		return nil, fmt.Errorf("unit of work is required")
	}
	if approvals == nil {
		return nil, fmt.Errorf("approval repository is required")
	}
	if managerThreshold.IsZero() || managerThreshold.IsNegative() {
		managerThreshold = defaultManagerThreshold
	}
	if adminThreshold.LessThanOrEqual(managerThreshold) {
		adminThreshold = defaultAdminThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ApprovalEscalator{
		uow:              uow,
		approvals:        approvals,
		logger:           logger,
		managerThreshold: managerThreshold,
		adminThreshold:   adminThreshold,
		now:              time.Now,
	}, nil
}

// RequiredTier returns the authority tier a discount percentage needs, or
// false when it is below every threshold and needs no approval.
func (s *ApprovalEscalator) RequiredTier(discountPercent decimal.Decimal) (domain.ApprovalTier, decimal.Decimal, bool) {
	if discountPercent.GreaterThan(s.adminThreshold) {
		return domain.TierAdmin, s.adminThreshold, true
	}
	if discountPercent.GreaterThan(s.managerThreshold) {
		return domain.TierManager, s.managerThreshold, true
	}
	return "", decimal.Zero, false
}

// RequestApproval opens an approval for a discount above threshold and
// edit-locks the quotation. Only one approval may be open per quotation.
func (s *ApprovalEscalator) RequestApproval(
	ctx context.Context,
	quotationID, requesterID string,
	discountPercent decimal.Decimal,
	reason string,
) (*domain.DiscountApproval, error) {
	quotationID = strings.TrimSpace(quotationID)
	requesterID = strings.TrimSpace(requesterID)
	if quotationID == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester id is required", domain.ErrValidation)
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: discount percent must be between 0 and 100", domain.ErrValidation)
	}

	tier, threshold, needed := s.RequiredTier(discountPercent)
	if !needed {
		return nil, fmt.Errorf("%w: discount of %s%% is below the approval threshold", domain.ErrValidation, discountPercent.String())
	}

	approval := &domain.DiscountApproval{
		ID:               uuid.NewString(),
		QuotationID:      quotationID,
		RequesterID:      requesterID,
		Status:           domain.ApprovalStatusPending,
		DiscountPercent:  discountPercent,
		ThresholdCrossed: threshold,
		Tier:             tier,
		Reason:           strings.TrimSpace(reason),
	}

	err := s.uow.Do(ctx, func(tx *repository.Set) error {
		quotation, err := tx.Quotations.LockByID(ctx, quotationID)
		if err != nil {
			return err
		}
		if quotation.Status != domain.StatusDraft {
			return fmt.Errorf("%w: discounts can only be changed on a draft quotation", domain.ErrConflict)
		}
		if quotation.ApprovalLocked {
			return fmt.Errorf("%w: an approval is already pending for this quotation", domain.ErrConflict)
		}
		if pending, err := tx.Approvals.GetPendingForQuotation(ctx, quotationID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		} else if pending != nil {
			return fmt.Errorf("%w: an approval is already pending for this quotation", domain.ErrConflict)
		}

		if err := tx.Approvals.Create(ctx, approval); err != nil {
			return err
		}
		return tx.Quotations.SetApprovalLock(ctx, quotationID, true, &approval.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("discount approval requested",
		zap.String("approvalId", approval.ID),
		zap.String("quotationId", quotationID),
		zap.String("tier", string(tier)),
		zap.String("discountPercent", discountPercent.String()),
	)
	return approval, nil
}

// Approve resolves a pending approval positively. The quotation stays
// locked until the approved discount is applied.
func (s *ApprovalEscalator) Approve(ctx context.Context, approvalID, actorID string, role domain.Role, comments string) (*domain.DiscountApproval, error) {
	return s.resolve(ctx, approvalID, actorID, role, comments, domain.ApprovalStatusApproved)
}

// Reject resolves a pending approval negatively and releases the
// quotation's edit lock.
func (s *ApprovalEscalator) Reject(ctx context.Context, approvalID, actorID string, role domain.Role, comments string) (*domain.DiscountApproval, error) {
	return s.resolve(ctx, approvalID, actorID, role, comments, domain.ApprovalStatusRejected)
}

func (s *ApprovalEscalator) resolve(
	ctx context.Context,
	approvalID, actorID string,
	role domain.Role,
	comments string,
	to domain.ApprovalStatus,
) (*domain.DiscountApproval, error) {
	approvalID = strings.TrimSpace(approvalID)
	actorID = strings.TrimSpace(actorID)
	if approvalID == "" {
		return nil, fmt.Errorf("%w: approval id is required", domain.ErrValidation)
	}
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", domain.ErrValidation)
	}

	var resolved *domain.DiscountApproval
	err := s.uow.Do(ctx, func(tx *repository.Set) error {
		approval, err := tx.Approvals.GetByID(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.Status.IsResolved() {
			return fmt.Errorf("%w: approval is already %s", domain.ErrValidation, approval.Status)
		}
		if !approval.CanBeActedOnBy(actorID, role) {
			return fmt.Errorf("%w: not authorized to act on this approval", domain.ErrDenied)
		}

		resolvedAt := s.now().UTC()
		if err := tx.Approvals.Resolve(ctx, approvalID, to, actorID, strings.TrimSpace(comments), resolvedAt); err != nil {
			return err
		}

		if to == domain.ApprovalStatusRejected {
			if err := tx.Quotations.SetApprovalLock(ctx, approval.QuotationID, false, nil); err != nil {
				return err
			}
		}

		approval.Status = to
		approval.ApproverID = &actorID
		approval.Comments = strings.TrimSpace(comments)
		approval.ResolvedAt = &resolvedAt
		resolved = approval
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("discount approval resolved",
		zap.String("approvalId", approvalID),
		zap.String("quotationId", resolved.QuotationID),
		zap.String("status", string(to)),
		zap.String("actorId", actorID),
	)
	return resolved, nil
}

// Escalate raises a pending approval to the admin tier. It may happen at
// most once and keeps the approval pending.
func (s *ApprovalEscalator) Escalate(ctx context.Context, approvalID, actorID string, role domain.Role, newApproverID string) (*domain.DiscountApproval, error) {
	approvalID = strings.TrimSpace(approvalID)
	if approvalID == "" {
		return nil, fmt.Errorf("%w: approval id is required", domain.ErrValidation)
	}
	if role != domain.RoleAdmin && role != domain.RoleManager {
		return nil, fmt.Errorf("%w: not authorized to escalate approvals", domain.ErrDenied)
	}

	var approver *string
	if trimmed := strings.TrimSpace(newApproverID); trimmed != "" {
		approver = &trimmed
	}

	var escalated *domain.DiscountApproval
	err := s.uow.Do(ctx, func(tx *repository.Set) error {
		approval, err := tx.Approvals.GetByID(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.Status.IsResolved() {
			return fmt.Errorf("%w: approval is already %s", domain.ErrValidation, approval.Status)
		}
		if approval.Escalated {
			return fmt.Errorf("%w: approval can only be escalated once", domain.ErrConflict)
		}

		if err := tx.Approvals.Escalate(ctx, approvalID, approver); err != nil {
			return err
		}

		approval.Tier = domain.TierAdmin
		approval.Escalated = true
		approval.ApproverID = approver
		escalated = approval
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("discount approval escalated",
		zap.String("approvalId", approvalID),
		zap.String("quotationId", escalated.QuotationID),
		zap.String("actorId", strings.TrimSpace(actorID)),
	)
	return escalated, nil
}

// GetByID loads one approval.
func (s *ApprovalEscalator) GetByID(ctx context.Context, approvalID string) (*domain.DiscountApproval, error) {
	if strings.TrimSpace(approvalID) == "" {
		return nil, fmt.Errorf("%w: approval id is required", domain.ErrValidation)
	}
	return s.approvals.GetByID(ctx, strings.TrimSpace(approvalID))
}
