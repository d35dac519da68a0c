package repository

import (
	"context"

	"gorm.io/gorm"
)

// Set bundles the repositories participating in one logical unit of work.
// Repositories obtained through UnitOfWork.Do share a single transaction.
type Set struct {
	Quotations QuotationRepository
	Links      AccessLinkRepository
	Passcodes  PasscodeRepository
	History    HistoryRepository
	Approvals  ApprovalRepository
	Dispatches DispatchRepository
}

// UnitOfWork runs multi-repository mutations as one atomic transaction
// against the store.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx *Set) error) error
}

func NewGormSet(db *gorm.DB) *Set {
	return &Set{
		Quotations: NewGormQuotationRepo(db),
		Links:      NewGormAccessLinkRepo(db),
		Passcodes:  NewGormPasscodeRepo(db),
		History:    NewGormHistoryRepo(db),
		Approvals:  NewGormApprovalRepo(db),
		Dispatches: NewGormDispatchRepo(db),
	}
}

type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Do(ctx context.Context, fn func(tx *Set) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormSet(tx))
	})
}
