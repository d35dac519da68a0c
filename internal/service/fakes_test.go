package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/notifier"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"github.com/shopspring/decimal"
)

type fakeQuotationRepo struct {
	createFn                func(ctx context.Context, q *domain.Quotation) error
	getByIDFn               func(ctx context.Context, id string) (*domain.Quotation, error)
	lockByIDFn              func(ctx context.Context, id string) (*domain.Quotation, error)
	updateStatusFn          func(ctx context.Context, id string, from, to domain.Status) error
	setStatusFn             func(ctx context.Context, id string, to domain.Status) error
	setDocumentNumberFn     func(ctx context.Context, id, documentNumber string) error
	setApprovalLockFn       func(ctx context.Context, id string, locked bool, approvalID *string) error
	setPricingFn            func(ctx context.Context, id string, discountPercent, discount, tax, total decimal.Decimal) error
	replaceLinesFn          func(ctx context.Context, id string, lines []domain.LineItem) error
	highestDocumentNumberFn func(ctx context.Context, prefix string, year int) (string, error)
	documentNumberExistsFn  func(ctx context.Context, documentNumber string) (bool, error)
	findAwaitingResponseFn  func(ctx context.Context, viewedBefore, today time.Time) ([]repository.AwaitingResponse, error)
}

func (f *fakeQuotationRepo) Create(ctx context.Context, q *domain.Quotation) error {
	if f.createFn != nil {
		return f.createFn(ctx, q)
	}
	return nil
}

func (f *fakeQuotationRepo) GetByID(ctx context.Context, id string) (*domain.Quotation, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeQuotationRepo) LockByID(ctx context.Context, id string) (*domain.Quotation, error) {
	if f.lockByIDFn != nil {
		return f.lockByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeQuotationRepo) UpdateStatus(ctx context.Context, id string, from, to domain.Status) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, id, from, to)
	}
	return nil
}

func (f *fakeQuotationRepo) SetStatus(ctx context.Context, id string, to domain.Status) error {
	if f.setStatusFn != nil {
		return f.setStatusFn(ctx, id, to)
	}
	return nil
}

func (f *fakeQuotationRepo) SetDocumentNumber(ctx context.Context, id, documentNumber string) error {
	if f.setDocumentNumberFn != nil {
		return f.setDocumentNumberFn(ctx, id, documentNumber)
	}
	return nil
}

func (f *fakeQuotationRepo) SetApprovalLock(ctx context.Context, id string, locked bool, approvalID *string) error {
	if f.setApprovalLockFn != nil {
		return f.setApprovalLockFn(ctx, id, locked, approvalID)
	}
	return nil
}

func (f *fakeQuotationRepo) SetPricing(ctx context.Context, id string, discountPercent, discount, tax, total decimal.Decimal) error {
	if f.setPricingFn != nil {
		return f.setPricingFn(ctx, id, discountPercent, discount, tax, total)
	}
	return nil
}

func (f *fakeQuotationRepo) ReplaceLines(ctx context.Context, id string, lines []domain.LineItem) error {
	if f.replaceLinesFn != nil {
		return f.replaceLinesFn(ctx, id, lines)
	}
	return nil
}

func (f *fakeQuotationRepo) HighestDocumentNumber(ctx context.Context, prefix string, year int) (string, error) {
	if f.highestDocumentNumberFn != nil {
		return f.highestDocumentNumberFn(ctx, prefix, year)
	}
	return "", domain.ErrNotFound
}

func (f *fakeQuotationRepo) DocumentNumberExists(ctx context.Context, documentNumber string) (bool, error) {
	if f.documentNumberExistsFn != nil {
		return f.documentNumberExistsFn(ctx, documentNumber)
	}
	return false, nil
}

func (f *fakeQuotationRepo) FindAwaitingResponse(ctx context.Context, viewedBefore, today time.Time) ([]repository.AwaitingResponse, error) {
	if f.findAwaitingResponseFn != nil {
		return f.findAwaitingResponseFn(ctx, viewedBefore, today)
	}
	return nil, nil
}

type fakeLinkRepo struct {
	issueExclusiveFn    func(ctx context.Context, link *domain.AccessLink) error
	getByTokenFn        func(ctx context.Context, token string) (*domain.AccessLink, error)
	listForQuotationFn  func(ctx context.Context, quotationID string) ([]domain.AccessLink, error)
	recordVisitFn       func(ctx context.Context, id, ip string, at time.Time) error
	markSentFn          func(ctx context.Context, id string, at time.Time) error
	createPageViewFn    func(ctx context.Context, view *domain.PageView) error
	closePageViewFn     func(ctx context.Context, id, accessLinkID string, endedAt time.Time) error
	findStaleUnviewedFn func(ctx context.Context, sentBefore, today time.Time) ([]repository.StaleLink, error)
}

func (f *fakeLinkRepo) IssueExclusive(ctx context.Context, link *domain.AccessLink) error {
	if f.issueExclusiveFn != nil {
		return f.issueExclusiveFn(ctx, link)
	}
	return nil
}

func (f *fakeLinkRepo) GetByToken(ctx context.Context, token string) (*domain.AccessLink, error) {
	if f.getByTokenFn != nil {
		return f.getByTokenFn(ctx, token)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLinkRepo) ListForQuotation(ctx context.Context, quotationID string) ([]domain.AccessLink, error) {
	if f.listForQuotationFn != nil {
		return f.listForQuotationFn(ctx, quotationID)
	}
	return nil, nil
}

func (f *fakeLinkRepo) RecordVisit(ctx context.Context, id, ip string, at time.Time) error {
	if f.recordVisitFn != nil {
		return f.recordVisitFn(ctx, id, ip, at)
	}
	return nil
}

func (f *fakeLinkRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, at)
	}
	return nil
}

func (f *fakeLinkRepo) CreatePageView(ctx context.Context, view *domain.PageView) error {
	if f.createPageViewFn != nil {
		return f.createPageViewFn(ctx, view)
	}
	return nil
}

func (f *fakeLinkRepo) ClosePageView(ctx context.Context, id, accessLinkID string, endedAt time.Time) error {
	if f.closePageViewFn != nil {
		return f.closePageViewFn(ctx, id, accessLinkID, endedAt)
	}
	return nil
}

func (f *fakeLinkRepo) FindStaleUnviewed(ctx context.Context, sentBefore, today time.Time) ([]repository.StaleLink, error) {
	if f.findStaleUnviewedFn != nil {
		return f.findStaleUnviewedFn(ctx, sentBefore, today)
	}
	return nil, nil
}

type fakePasscodeRepo struct {
	createFn            func(ctx context.Context, p *domain.OneTimePasscode) error
	supersedeUnusedFn   func(ctx context.Context, linkID, email string) error
	lockLatestUnusedFn  func(ctx context.Context, linkID, email string) (*domain.OneTimePasscode, error)
	incrementAttemptsFn func(ctx context.Context, id string, prevAttempts int) (bool, error)
	markUsedFn          func(ctx context.Context, id string) error
	markVerifiedFn      func(ctx context.Context, id string, at time.Time) error
	hasRecentVerifiedFn func(ctx context.Context, linkID, email string, since time.Time) (bool, error)
}

func (f *fakePasscodeRepo) Create(ctx context.Context, p *domain.OneTimePasscode) error {
	if f.createFn != nil {
		return f.createFn(ctx, p)
	}
	return nil
}

func (f *fakePasscodeRepo) SupersedeUnused(ctx context.Context, linkID, email string) error {
	if f.supersedeUnusedFn != nil {
		return f.supersedeUnusedFn(ctx, linkID, email)
	}
	return nil
}

func (f *fakePasscodeRepo) LockLatestUnused(ctx context.Context, linkID, email string) (*domain.OneTimePasscode, error) {
	if f.lockLatestUnusedFn != nil {
		return f.lockLatestUnusedFn(ctx, linkID, email)
	}
	return nil, domain.ErrNotFound
}

func (f *fakePasscodeRepo) IncrementAttempts(ctx context.Context, id string, prevAttempts int) (bool, error) {
	if f.incrementAttemptsFn != nil {
		return f.incrementAttemptsFn(ctx, id, prevAttempts)
	}
	return true, nil
}

func (f *fakePasscodeRepo) MarkUsed(ctx context.Context, id string) error {
	if f.markUsedFn != nil {
		return f.markUsedFn(ctx, id)
	}
	return nil
}

func (f *fakePasscodeRepo) MarkVerified(ctx context.Context, id string, at time.Time) error {
	if f.markVerifiedFn != nil {
		return f.markVerifiedFn(ctx, id, at)
	}
	return nil
}

func (f *fakePasscodeRepo) HasRecentVerified(ctx context.Context, linkID, email string, since time.Time) (bool, error) {
	if f.hasRecentVerifiedFn != nil {
		return f.hasRecentVerifiedFn(ctx, linkID, email, since)
	}
	return false, nil
}

type fakeApprovalRepo struct {
	createFn                 func(ctx context.Context, a *domain.DiscountApproval) error
	getByIDFn                func(ctx context.Context, id string) (*domain.DiscountApproval, error)
	getPendingForQuotationFn func(ctx context.Context, quotationID string) (*domain.DiscountApproval, error)
	resolveFn                func(ctx context.Context, id string, status domain.ApprovalStatus, approverID, comments string, at time.Time) error
	escalateFn               func(ctx context.Context, id string, newApproverID *string) error
	markAppliedFn            func(ctx context.Context, id string, at time.Time) error
}

func (f *fakeApprovalRepo) Create(ctx context.Context, a *domain.DiscountApproval) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeApprovalRepo) GetByID(ctx context.Context, id string) (*domain.DiscountApproval, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeApprovalRepo) GetPendingForQuotation(ctx context.Context, quotationID string) (*domain.DiscountApproval, error) {
	if f.getPendingForQuotationFn != nil {
		return f.getPendingForQuotationFn(ctx, quotationID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeApprovalRepo) Resolve(ctx context.Context, id string, status domain.ApprovalStatus, approverID, comments string, at time.Time) error {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, id, status, approverID, comments, at)
	}
	return nil
}

func (f *fakeApprovalRepo) Escalate(ctx context.Context, id string, newApproverID *string) error {
	if f.escalateFn != nil {
		return f.escalateFn(ctx, id, newApproverID)
	}
	return nil
}

func (f *fakeApprovalRepo) MarkApplied(ctx context.Context, id string, at time.Time) error {
	if f.markAppliedFn != nil {
		return f.markAppliedFn(ctx, id, at)
	}
	return nil
}

type fakeHistoryRepo struct {
	appendFn            func(ctx context.Context, entry *domain.StatusHistoryEntry) error
	listForQuotationFn  func(ctx context.Context, quotationID string) ([]domain.StatusHistoryEntry, error)
	countForQuotationFn func(ctx context.Context, quotationID string, to domain.Status) (int64, error)
}

func (f *fakeHistoryRepo) Append(ctx context.Context, entry *domain.StatusHistoryEntry) error {
	if f.appendFn != nil {
		return f.appendFn(ctx, entry)
	}
	return nil
}

func (f *fakeHistoryRepo) ListForQuotation(ctx context.Context, quotationID string) ([]domain.StatusHistoryEntry, error) {
	if f.listForQuotationFn != nil {
		return f.listForQuotationFn(ctx, quotationID)
	}
	return nil, nil
}

func (f *fakeHistoryRepo) CountForQuotation(ctx context.Context, quotationID string, to domain.Status) (int64, error) {
	if f.countForQuotationFn != nil {
		return f.countForQuotationFn(ctx, quotationID, to)
	}
	return 0, nil
}

type fakeDispatchRepo struct {
	createFn                func(ctx context.Context, a *domain.DispatchAttempt) error
	getByIDFn               func(ctx context.Context, id string) (*domain.DispatchAttempt, error)
	listForQuotationFn      func(ctx context.Context, quotationID string) ([]domain.DispatchAttempt, error)
	getDueForRetryFn        func(ctx context.Context, now time.Time, limit int) ([]domain.DispatchAttempt, error)
	lockForDeliveryFn       func(ctx context.Context, id string) (*domain.DispatchAttempt, error)
	markDeliveredFn         func(ctx context.Context, id, providerRef string) error
	markFailedFn            func(ctx context.Context, id string, attemptNumber int, errDetail string, nextRetryAt time.Time) error
	markPermanentlyFailedFn func(ctx context.Context, id string, errDetail string) error
	cancelFn                func(ctx context.Context, id string) error
}

func (f *fakeDispatchRepo) Create(ctx context.Context, a *domain.DispatchAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeDispatchRepo) GetByID(ctx context.Context, id string) (*domain.DispatchAttempt, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDispatchRepo) ListForQuotation(ctx context.Context, quotationID string) ([]domain.DispatchAttempt, error) {
	if f.listForQuotationFn != nil {
		return f.listForQuotationFn(ctx, quotationID)
	}
	return nil, nil
}

func (f *fakeDispatchRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.DispatchAttempt, error) {
	if f.getDueForRetryFn != nil {
		return f.getDueForRetryFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeDispatchRepo) LockForDelivery(ctx context.Context, id string) (*domain.DispatchAttempt, error) {
	if f.lockForDeliveryFn != nil {
		return f.lockForDeliveryFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeDispatchRepo) MarkDelivered(ctx context.Context, id, providerRef string) error {
	if f.markDeliveredFn != nil {
		return f.markDeliveredFn(ctx, id, providerRef)
	}
	return nil
}

func (f *fakeDispatchRepo) MarkFailed(ctx context.Context, id string, attemptNumber int, errDetail string, nextRetryAt time.Time) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, attemptNumber, errDetail, nextRetryAt)
	}
	return nil
}

func (f *fakeDispatchRepo) MarkPermanentlyFailed(ctx context.Context, id string, errDetail string) error {
	if f.markPermanentlyFailedFn != nil {
		return f.markPermanentlyFailedFn(ctx, id, errDetail)
	}
	return nil
}

func (f *fakeDispatchRepo) Cancel(ctx context.Context, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id)
	}
	return nil
}

// fakeUnitOfWork hands the callback a fixed repository set; there is no
// real transaction, so tests observe every call directly.
type fakeUnitOfWork struct {
	set *repository.Set
}

func (f *fakeUnitOfWork) Do(ctx context.Context, fn func(tx *repository.Set) error) error {
	return fn(f.set)
}

type fakeNotifier struct {
	sendFn func(ctx context.Context, msg notifier.Email) (string, error)
}

func (f *fakeNotifier) SendEmail(ctx context.Context, msg notifier.Email) (string, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return "msg-ref", nil
}

type fakeRenderer struct {
	renderFn func(ctx context.Context, q domain.Quotation) ([]byte, error)
}

func (f *fakeRenderer) Render(ctx context.Context, q domain.Quotation) ([]byte, error) {
	if f.renderFn != nil {
		return f.renderFn(ctx, q)
	}
	return []byte("%PDF-1.7"), nil
}

type fakeLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

type fakeCache struct {
	getFn        func(ctx context.Context, key string) (string, bool, error)
	setFn        func(ctx context.Context, key, value string, ttl time.Duration) error
	setNXFn      func(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	invalidateFn func(ctx context.Context, key string) error
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getFn != nil {
		return f.getFn(ctx, key)
	}
	return "", false, nil
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.setFn != nil {
		return f.setFn(ctx, key, value, ttl)
	}
	return nil
}

func (f *fakeCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if f.setNXFn != nil {
		return f.setNXFn(ctx, key, value, ttl)
	}
	return true, nil
}

func (f *fakeCache) Invalidate(ctx context.Context, key string) error {
	if f.invalidateFn != nil {
		return f.invalidateFn(ctx, key)
	}
	return nil
}

type fakeTokenIssuer struct {
	tokenFn func() (string, error)
	codeFn  func(digits int) (string, error)
	saltFn  func() (string, error)
}

func (f *fakeTokenIssuer) NewToken() (string, error) {
	if f.tokenFn != nil {
		return f.tokenFn()
	}
	return "fixed-test-token", nil
}

func (f *fakeTokenIssuer) NumericCode(digits int) (string, error) {
	if f.codeFn != nil {
		return f.codeFn(digits)
	}
	return "123456", nil
}

func (f *fakeTokenIssuer) NewSalt() (string, error) {
	if f.saltFn != nil {
		return f.saltFn()
	}
	return "0123456789abcdef0123456789abcdef", nil
}
