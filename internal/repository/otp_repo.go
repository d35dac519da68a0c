package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PasscodeRepository interface {
	Create(ctx context.Context, p *domain.OneTimePasscode) error
	// SupersedeUnused marks every unused passcode for the pair as used
	// without verification so only the newest issue can ever verify.
	SupersedeUnused(ctx context.Context, linkID, email string) error
	// LockLatestUnused loads the most recent unused passcode for the pair
	// under a row lock so the read-increment-compare sequence is atomic.
	LockLatestUnused(ctx context.Context, linkID, email string) (*domain.OneTimePasscode, error)
	// IncrementAttempts bumps the counter guarded by its previous value;
	// false means a concurrent verifier got there first.
	IncrementAttempts(ctx context.Context, id string, prevAttempts int) (bool, error)
	MarkUsed(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string, at time.Time) error
	// HasRecentVerified reports whether the pair verified a passcode since
	// the given instant. Drives the portal response gate.
	HasRecentVerified(ctx context.Context, linkID, email string, since time.Time) (bool, error)
}

type GormPasscodeRepo struct {
	db *gorm.DB
}

func NewGormPasscodeRepo(db *gorm.DB) *GormPasscodeRepo {
	return &GormPasscodeRepo{db: db}
}

func (r *GormPasscodeRepo) Create(ctx context.Context, p *domain.OneTimePasscode) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *GormPasscodeRepo) SupersedeUnused(ctx context.Context, linkID, email string) error {
	return r.db.WithContext(ctx).
		Model(&domain.OneTimePasscode{}).
		Where("access_link_id = ? AND email = ? AND NOT used", linkID, email).
		Update("used", true).Error
}

func (r *GormPasscodeRepo) LockLatestUnused(ctx context.Context, linkID, email string) (*domain.OneTimePasscode, error) {
	var p domain.OneTimePasscode
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("access_link_id = ? AND email = ? AND NOT used", linkID, email).
		Order("created_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPasscodeRepo) IncrementAttempts(ctx context.Context, id string, prevAttempts int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.OneTimePasscode{}).
		Where("id = ? AND attempts = ?", id, prevAttempts).
		Update("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormPasscodeRepo) MarkUsed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.OneTimePasscode{}).
		Where("id = ?", id).
		Update("used", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPasscodeRepo) MarkVerified(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.OneTimePasscode{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"used":        true,
			"verified_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPasscodeRepo) HasRecentVerified(ctx context.Context, linkID, email string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OneTimePasscode{}).
		Where("access_link_id = ? AND email = ? AND verified_at >= ?", linkID, email, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
