package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"gorm.io/gorm"
)

type ApprovalRepository interface {
	Create(ctx context.Context, a *domain.DiscountApproval) error
	GetByID(ctx context.Context, id string) (*domain.DiscountApproval, error)
	GetPendingForQuotation(ctx context.Context, quotationID string) (*domain.DiscountApproval, error)
	// Resolve finalizes a pending approval; resolving an already-resolved
	// approval reports ErrValidation so terminality is race-safe.
	Resolve(ctx context.Context, id string, status domain.ApprovalStatus, approverID, comments string, at time.Time) error
	// Escalate raises a pending, not yet escalated approval to the admin
	// tier and reassigns its approver.
	Escalate(ctx context.Context, id string, newApproverID *string) error
	MarkApplied(ctx context.Context, id string, at time.Time) error
}

type GormApprovalRepo struct {
	db *gorm.DB
}

func NewGormApprovalRepo(db *gorm.DB) *GormApprovalRepo {
	return &GormApprovalRepo{db: db}
}

func (r *GormApprovalRepo) Create(ctx context.Context, a *domain.DiscountApproval) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormApprovalRepo) GetByID(ctx context.Context, id string) (*domain.DiscountApproval, error) {
	var a domain.DiscountApproval
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormApprovalRepo) GetPendingForQuotation(ctx context.Context, quotationID string) (*domain.DiscountApproval, error) {
	var a domain.DiscountApproval
	err := r.db.WithContext(ctx).
		Where("quotation_id = ? AND status = ?", quotationID, domain.ApprovalStatusPending).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormApprovalRepo) Resolve(ctx context.Context, id string, status domain.ApprovalStatus, approverID, comments string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DiscountApproval{}).
		Where("id = ? AND status = ?", id, domain.ApprovalStatusPending).
		Updates(map[string]any{
			"status":      status,
			"approver_id": approverID,
			"comments":    comments,
			"resolved_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: approval is no longer pending", domain.ErrValidation)
	}
	return nil
}

func (r *GormApprovalRepo) Escalate(ctx context.Context, id string, newApproverID *string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DiscountApproval{}).
		Where("id = ? AND status = ? AND NOT escalated", id, domain.ApprovalStatusPending).
		Updates(map[string]any{
			"escalated":   true,
			"tier":        domain.TierAdmin,
			"approver_id": newApproverID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: approval is not pending or was already escalated", domain.ErrValidation)
	}
	return nil
}

func (r *GormApprovalRepo) MarkApplied(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DiscountApproval{}).
		Where("id = ? AND status = ?", id, domain.ApprovalStatusApproved).
		Updates(map[string]any{
			"status":      domain.ApprovalStatusApplied,
			"resolved_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
