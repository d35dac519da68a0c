package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DispatchRepository interface {
	Create(ctx context.Context, a *domain.DispatchAttempt) error
	GetByID(ctx context.Context, id string) (*domain.DispatchAttempt, error)
	ListForQuotation(ctx context.Context, quotationID string) ([]domain.DispatchAttempt, error)
	// GetDueForRetry returns failed attempts whose next retry time has
	// passed, oldest first.
	GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.DispatchAttempt, error)
	// LockForDelivery claims a due attempt under a row lock; nil result
	// means another scanner instance claimed it first.
	LockForDelivery(ctx context.Context, id string) (*domain.DispatchAttempt, error)
	MarkDelivered(ctx context.Context, id, providerRef string) error
	MarkFailed(ctx context.Context, id string, attemptNumber int, errDetail string, nextRetryAt time.Time) error
	MarkPermanentlyFailed(ctx context.Context, id string, errDetail string) error
	// Cancel withdraws a pending or failed attempt; a resolved attempt
	// reports ErrConflict and an unknown id ErrNotFound.
	Cancel(ctx context.Context, id string) error
}

type GormDispatchRepo struct {
	db *gorm.DB
}

func NewGormDispatchRepo(db *gorm.DB) *GormDispatchRepo {
	return &GormDispatchRepo{db: db}
}

func (r *GormDispatchRepo) Create(ctx context.Context, a *domain.DispatchAttempt) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormDispatchRepo) GetByID(ctx context.Context, id string) (*domain.DispatchAttempt, error) {
	var a domain.DispatchAttempt
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormDispatchRepo) ListForQuotation(ctx context.Context, quotationID string) ([]domain.DispatchAttempt, error) {
	var attempts []domain.DispatchAttempt
	err := r.db.WithContext(ctx).
		Where("quotation_id = ?", quotationID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *GormDispatchRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.DispatchAttempt, error) {
	var attempts []domain.DispatchAttempt
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.DispatchStatusFailed, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *GormDispatchRepo) LockForDelivery(ctx context.Context, id string) (*domain.DispatchAttempt, error) {
	var a domain.DispatchAttempt
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if a.Status != domain.DispatchStatusFailed && a.Status != domain.DispatchStatusPending {
		return nil, nil
	}
	return &a, nil
}

func (r *GormDispatchRepo) MarkDelivered(ctx context.Context, id, providerRef string) error {
	updates := map[string]any{
		"status":        domain.DispatchStatusDelivered,
		"next_retry_at": nil,
		"error":         nil,
	}
	if providerRef != "" {
		updates["provider_ref"] = providerRef
	}

	result := r.db.WithContext(ctx).
		Model(&domain.DispatchAttempt{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDispatchRepo) MarkFailed(ctx context.Context, id string, attemptNumber int, errDetail string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DispatchAttempt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         domain.DispatchStatusFailed,
			"attempt_number": attemptNumber,
			"error":          errDetail,
			"next_retry_at":  nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDispatchRepo) MarkPermanentlyFailed(ctx context.Context, id string, errDetail string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DispatchAttempt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.DispatchStatusPermanentlyFailed,
			"error":         errDetail,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDispatchRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DispatchAttempt{}).
		Where("id = ? AND status IN ?", id, []domain.DispatchStatus{domain.DispatchStatusPending, domain.DispatchStatusFailed}).
		Update("status", domain.DispatchStatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}
