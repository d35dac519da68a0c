package repository

import (
	"context"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"gorm.io/gorm"
)

type HistoryRepository interface {
	// Append writes one immutable audit record. There is deliberately no
	// update or delete.
	Append(ctx context.Context, entry *domain.StatusHistoryEntry) error
	ListForQuotation(ctx context.Context, quotationID string) ([]domain.StatusHistoryEntry, error)
	CountForQuotation(ctx context.Context, quotationID string, to domain.Status) (int64, error)
}

type GormHistoryRepo struct {
	db *gorm.DB
}

func NewGormHistoryRepo(db *gorm.DB) *GormHistoryRepo {
	return &GormHistoryRepo{db: db}
}

func (r *GormHistoryRepo) Append(ctx context.Context, entry *domain.StatusHistoryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *GormHistoryRepo) ListForQuotation(ctx context.Context, quotationID string) ([]domain.StatusHistoryEntry, error) {
	var entries []domain.StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Where("quotation_id = ?", quotationID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *GormHistoryRepo) CountForQuotation(ctx context.Context, quotationID string, to domain.Status) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.StatusHistoryEntry{}).
		Where("quotation_id = ? AND to_status = ?", quotationID, to).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
