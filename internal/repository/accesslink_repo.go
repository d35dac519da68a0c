package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"gorm.io/gorm"
)

// StaleLink is the most recently sent active link of a still-SENT
// quotation that has never been viewed, joined flat for the unviewed
// reminder sweep.
type StaleLink struct {
	LinkID         string    `gorm:"column:link_id"`
	QuotationID    string    `gorm:"column:quotation_id"`
	DocumentNumber string    `gorm:"column:document_number"`
	OwnerEmail     string    `gorm:"column:owner_email"`
	ClientEmail    string    `gorm:"column:client_email"`
	SentAt         time.Time `gorm:"column:sent_at"`
}

type AccessLinkRepository interface {
	// IssueExclusive deactivates every active link of the quotation and
	// creates the new one as a single transaction, preserving the
	// at-most-one-active invariant under concurrent writers.
	IssueExclusive(ctx context.Context, link *domain.AccessLink) error
	GetByToken(ctx context.Context, token string) (*domain.AccessLink, error)
	ListForQuotation(ctx context.Context, quotationID string) ([]domain.AccessLink, error)
	// RecordVisit atomically bumps the view counter, stamps first/last
	// viewed and the last seen IP.
	RecordVisit(ctx context.Context, id, ip string, at time.Time) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	CreatePageView(ctx context.Context, view *domain.PageView) error
	// ClosePageView stamps the end of an open view. The link scope keeps
	// one portal session from closing another session's record.
	ClosePageView(ctx context.Context, id, accessLinkID string, endedAt time.Time) error
	FindStaleUnviewed(ctx context.Context, sentBefore, today time.Time) ([]StaleLink, error)
}

type GormAccessLinkRepo struct {
	db *gorm.DB
}

func NewGormAccessLinkRepo(db *gorm.DB) *GormAccessLinkRepo {
	return &GormAccessLinkRepo{db: db}
}

func (r *GormAccessLinkRepo) IssueExclusive(ctx context.Context, link *domain.AccessLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&domain.AccessLink{}).
			Where("quotation_id = ? AND active", link.QuotationID).
			Update("active", false).Error
		if err != nil {
			return err
		}
		return tx.Create(link).Error
	})
}

func (r *GormAccessLinkRepo) GetByToken(ctx context.Context, token string) (*domain.AccessLink, error) {
	var link domain.AccessLink
	err := r.db.WithContext(ctx).First(&link, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *GormAccessLinkRepo) ListForQuotation(ctx context.Context, quotationID string) ([]domain.AccessLink, error) {
	var links []domain.AccessLink
	err := r.db.WithContext(ctx).
		Where("quotation_id = ?", quotationID).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (r *GormAccessLinkRepo) RecordVisit(ctx context.Context, id, ip string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.AccessLink{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"view_count":      gorm.Expr("view_count + 1"),
			"first_viewed_at": gorm.Expr("COALESCE(first_viewed_at, ?)", at),
			"last_viewed_at":  at,
			"last_seen_ip":    ip,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormAccessLinkRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.AccessLink{}).
		Where("id = ? AND sent_at IS NULL", id).
		Update("sent_at", at).Error
}

func (r *GormAccessLinkRepo) CreatePageView(ctx context.Context, view *domain.PageView) error {
	return r.db.WithContext(ctx).Create(view).Error
}

func (r *GormAccessLinkRepo) ClosePageView(ctx context.Context, id, accessLinkID string, endedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.PageView{}).
		Where("id = ? AND access_link_id = ? AND ended_at IS NULL", id, accessLinkID).
		Update("ended_at", endedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindStaleUnviewed groups by quotation and takes only the latest link so
// historical links never produce duplicate reminders.
func (r *GormAccessLinkRepo) FindStaleUnviewed(ctx context.Context, sentBefore, today time.Time) ([]StaleLink, error) {
	var rows []StaleLink
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (l.quotation_id)
		       l.id AS link_id,
		       l.quotation_id,
		       q.document_number,
		       q.owner_email,
		       q.client_email,
		       l.sent_at
		FROM access_links l
		JOIN quotations q ON q.id = l.quotation_id
		WHERE l.active
		  AND l.first_viewed_at IS NULL
		  AND l.sent_at IS NOT NULL
		  AND l.sent_at < ?
		  AND q.status = ?
		  AND q.valid_until >= ?
		ORDER BY l.quotation_id, l.sent_at DESC`,
		sentBefore, domain.StatusSent, today,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
