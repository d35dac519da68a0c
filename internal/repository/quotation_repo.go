package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgUndefinedTable is the postgres error code raised when a relation does
// not exist yet (bootstrap condition).
const pgUndefinedTable = "42P01"

// AwaitingResponse is a quotation first viewed before a cutoff that still
// has no recorded response, joined flat for the follow-up sweep.
type AwaitingResponse struct {
	QuotationID    string    `gorm:"column:quotation_id"`
	DocumentNumber string    `gorm:"column:document_number"`
	OwnerEmail     string    `gorm:"column:owner_email"`
	ClientEmail    string    `gorm:"column:client_email"`
	ValidUntil     time.Time `gorm:"column:valid_until"`
	FirstViewedAt  time.Time `gorm:"column:first_viewed_at"`
}

type QuotationRepository interface {
	Create(ctx context.Context, q *domain.Quotation) error
	GetByID(ctx context.Context, id string) (*domain.Quotation, error)
	// LockByID loads the quotation with a row lock for the duration of the
	// enclosing transaction.
	LockByID(ctx context.Context, id string) (*domain.Quotation, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.Status) error
	SetStatus(ctx context.Context, id string, to domain.Status) error
	SetDocumentNumber(ctx context.Context, id, documentNumber string) error
	SetApprovalLock(ctx context.Context, id string, locked bool, approvalID *string) error
	SetPricing(ctx context.Context, id string, discountPercent, discount, tax, total decimal.Decimal) error
	// ReplaceLines swaps the full line item set of a draft quotation.
	ReplaceLines(ctx context.Context, id string, lines []domain.LineItem) error
	// HighestDocumentNumber returns the greatest sequentially numbered
	// document for the given prefix and year. Numbers with a random
	// suffix are ignored so a degraded allocation never shifts the
	// sequence. Reports ErrNotFound when no sequential number exists and
	// ErrNotProvisioned when the table is missing.
	HighestDocumentNumber(ctx context.Context, prefix string, year int) (string, error)
	DocumentNumberExists(ctx context.Context, documentNumber string) (bool, error)
	FindAwaitingResponse(ctx context.Context, viewedBefore, today time.Time) ([]AwaitingResponse, error)
}

type GormQuotationRepo struct {
	db *gorm.DB
}

func NewGormQuotationRepo(db *gorm.DB) *GormQuotationRepo {
	return &GormQuotationRepo{db: db}
}

func (r *GormQuotationRepo) Create(ctx context.Context, q *domain.Quotation) error {
	return r.db.WithContext(ctx).Create(q).Error
}

func (r *GormQuotationRepo) GetByID(ctx context.Context, id string) (*domain.Quotation, error) {
	var q domain.Quotation
	err := r.db.WithContext(ctx).Preload("Lines").First(&q, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *GormQuotationRepo) LockByID(ctx context.Context, id string) (*domain.Quotation, error) {
	var q domain.Quotation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines").
		First(&q, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateStatus transitions status guarded by the expected previous value;
// a lost race surfaces as ErrConflict.
func (r *GormQuotationRepo) UpdateStatus(ctx context.Context, id string, from, to domain.Status) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Quotation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormQuotationRepo) SetStatus(ctx context.Context, id string, to domain.Status) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Quotation{}).
		Where("id = ?", id).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormQuotationRepo) SetDocumentNumber(ctx context.Context, id, documentNumber string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Quotation{}).
		Where("id = ? AND (document_number IS NULL OR document_number = '')", id).
		Update("document_number", documentNumber)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormQuotationRepo) SetApprovalLock(ctx context.Context, id string, locked bool, approvalID *string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Quotation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"approval_locked": locked,
			"approval_id":     approvalID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormQuotationRepo) SetPricing(ctx context.Context, id string, discountPercent, discount, tax, total decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Quotation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"discount_percent": discountPercent,
			"discount":         discount,
			"tax":              tax,
			"total":            total,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormQuotationRepo) ReplaceLines(ctx context.Context, id string, lines []domain.LineItem) error {
	if err := r.db.WithContext(ctx).
		Where("quotation_id = ?", id).
		Delete(&domain.LineItem{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *GormQuotationRepo) HighestDocumentNumber(ctx context.Context, prefix string, year int) (string, error) {
	var number string
	// Six-digit sequential suffixes sort numerically under a plain text
	// order; random suffixes are excluded by the pattern.
	err := r.db.WithContext(ctx).
		Model(&domain.Quotation{}).
		Select("document_number").
		Where("document_number ~ ?", sequentialNumberPattern(prefix, year)).
		Order("document_number DESC").
		Limit(1).
		Scan(&number).Error
	if err != nil {
		return "", classifyStoreError(err)
	}
	if strings.TrimSpace(number) == "" {
		return "", domain.ErrNotFound
	}
	return number, nil
}

func (r *GormQuotationRepo) DocumentNumberExists(ctx context.Context, documentNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Quotation{}).
		Where("document_number = ?", documentNumber).
		Count(&count).Error
	if err != nil {
		return false, classifyStoreError(err)
	}
	return count > 0, nil
}

func (r *GormQuotationRepo) FindAwaitingResponse(ctx context.Context, viewedBefore, today time.Time) ([]AwaitingResponse, error) {
	var rows []AwaitingResponse
	err := r.db.WithContext(ctx).Raw(`
		SELECT q.id AS quotation_id,
		       q.document_number,
		       q.owner_email,
		       q.client_email,
		       q.valid_until,
		       MIN(l.first_viewed_at) AS first_viewed_at
		FROM quotations q
		JOIN access_links l ON l.quotation_id = q.id
		WHERE q.status IN ?
		  AND l.first_viewed_at IS NOT NULL
		  AND q.valid_until >= ?
		GROUP BY q.id, q.document_number, q.owner_email, q.client_email, q.valid_until
		HAVING MIN(l.first_viewed_at) < ?`,
		[]domain.Status{domain.StatusSent, domain.StatusViewed}, today, viewedBefore,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func sequentialNumberPattern(prefix string, year int) string {
	return fmt.Sprintf(`^%s-%d-[0-9]{6}$`, regexp.QuoteMeta(prefix), year)
}

// classifyStoreError maps driver errors to the typed taxonomy so callers
// never parse error text.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return domain.ErrNotProvisioned
	}

	return err
}
