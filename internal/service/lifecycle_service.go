package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quotation-engine/internal/cache"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/notifier"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"github.com/kursadbilgin/quotation-engine/internal/renderer"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LifecycleOrchestrator drives the quotation state machine and coordinates
// send/resend across the allocator, link manager, renderer, and notifier.
type LifecycleOrchestrator struct {
	uow        repository.UnitOfWork
	quotations repository.QuotationRepository
	history    repository.HistoryRepository
	dispatches repository.DispatchRepository
	links      *AccessLinkManager
	sequence   *SequenceAllocator
	escalator  *ApprovalEscalator
	render     renderer.Renderer
	notify     notifier.Notifier
	documents  cache.Cache
	logger     *zap.Logger
	metrics    *observability.Metrics

	portalBaseURL  string
	companyTaxCode string
	taxRatePercent decimal.Decimal
	now            func() time.Time
}

type LifecycleConfig struct {
	PortalBaseURL  string
	CompanyTaxCode string
	TaxRatePercent decimal.Decimal
}

func NewLifecycleOrchestrator(
	uow repository.UnitOfWork,
	quotations repository.QuotationRepository,
	history repository.HistoryRepository,
	dispatches repository.DispatchRepository,
	links *AccessLinkManager,
	sequence *SequenceAllocator,
	escalator *ApprovalEscalator,
	render renderer.Renderer,
	notify notifier.Notifier,
	cfg LifecycleConfig,
	logger *zap.Logger,
) (*LifecycleOrchestrator, error) {
	if uow == nil {
		return nil, fmt.Errorf("unit of work is required")
	}
	if quotations == nil {
		return nil, fmt.Errorf("quotation repository is required")
	}
	if links == nil {
		return nil, fmt.Errorf("access link manager is required")
	}
	if sequence == nil {
		return nil, fmt.Errorf("sequence allocator is required")
	}
	if render == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if strings.TrimSpace(cfg.PortalBaseURL) == "" {
		return nil, fmt.Errorf("portal base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rate := cfg.TaxRatePercent
	if rate.IsZero() || rate.IsNegative() {
		rate = domain.DefaultTaxRatePercent
	}

	return &LifecycleOrchestrator{
		uow:            uow,
		quotations:     quotations,
		history:        history,
		dispatches:     dispatches,
		links:          links,
		sequence:       sequence,
		escalator:      escalator,
		render:         render,
		notify:         notify,
		logger:         logger,
		portalBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.PortalBaseURL), "/"),
		companyTaxCode: strings.TrimSpace(cfg.CompanyTaxCode),
		taxRatePercent: rate,
		now:            time.Now,
	}, nil
}

func (s *LifecycleOrchestrator) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SetDocumentCache enables reuse of rendered documents across resends.
// Draft edits and applied approvals invalidate the cached copy.
func (s *LifecycleOrchestrator) SetDocumentCache(documents cache.Cache) {
	if s == nil {
		return
	}
	s.documents = documents
}

// Create validates and stores a new draft quotation with computed totals.
// Discounts above the approval threshold are rejected here; they enter
// through the approval workflow instead.
func (s *LifecycleOrchestrator) Create(ctx context.Context, q *domain.Quotation) (*domain.Quotation, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: quotation is required", domain.ErrValidation)
	}
	if len(q.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", domain.ErrValidation)
	}

	if s.escalator != nil {
		if tier, _, needed := s.escalator.RequiredTier(q.DiscountPercent); needed {
			return nil, fmt.Errorf("%w: a discount of %s%% needs %s approval before it can be set",
				domain.ErrValidation, q.DiscountPercent.String(), strings.ToLower(string(tier)))
		}
	}

	q.ID = uuid.NewString()
	q.Status = domain.StatusDraft
	q.DocumentNumber = ""
	q.ApprovalLocked = false
	q.ApprovalID = nil
	if q.IssueDate.IsZero() {
		q.IssueDate = s.now().UTC().Truncate(24 * time.Hour)
	}
	for i := range q.Lines {
		q.Lines[i].ID = uuid.NewString()
		q.Lines[i].QuotationID = q.ID
	}

	s.applyPricing(q, q.DiscountPercent)

	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.quotations.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateDraft replaces the editable fields of a draft quotation and
// recomputes its totals. Sent and approval-locked quotations refuse edits.
func (s *LifecycleOrchestrator) UpdateDraft(ctx context.Context, id string, lines []domain.LineItem, discountPercent decimal.Decimal, validUntil time.Time, notes string) (*domain.Quotation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", domain.ErrValidation)
	}
	if s.escalator != nil {
		if tier, _, needed := s.escalator.RequiredTier(discountPercent); needed {
			return nil, fmt.Errorf("%w: a discount of %s%% needs %s approval before it can be set",
				domain.ErrValidation, discountPercent.String(), strings.ToLower(string(tier)))
		}
	}

	var updated *domain.Quotation
	err := s.uow.Do(ctx, func(tx *repository.Set) error {
		q, err := tx.Quotations.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if !q.Editable() {
			return fmt.Errorf("%w: quotation is not editable", domain.ErrConflict)
		}

		for i := range lines {
			lines[i].ID = uuid.NewString()
			lines[i].QuotationID = id
		}
		if err := tx.Quotations.ReplaceLines(ctx, id, lines); err != nil {
			return err
		}

		q.Lines = lines
		q.ValidUntil = validUntil
		q.Notes = notes
		s.applyPricing(q, discountPercent)
		if err := q.Validate(); err != nil {
			return err
		}

		if err := tx.Quotations.SetPricing(ctx, id, q.DiscountPercent, q.Discount, q.Tax, q.Total); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDocument(ctx, id)
	return updated, nil
}

// Get loads one quotation with its line items.
func (s *LifecycleOrchestrator) Get(ctx context.Context, id string) (*domain.Quotation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	return s.quotations.GetByID(ctx, strings.TrimSpace(id))
}

// History lists the audit trail, oldest first.
func (s *LifecycleOrchestrator) History(ctx context.Context, quotationID string) ([]domain.StatusHistoryEntry, error) {
	if strings.TrimSpace(quotationID) == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	return s.history.ListForQuotation(ctx, strings.TrimSpace(quotationID))
}

// DispatchHistory lists every delivery attempt of a quotation, oldest
// first, for the internal delivery audit view.
func (s *LifecycleOrchestrator) DispatchHistory(ctx context.Context, quotationID string) ([]domain.DispatchAttempt, error) {
	if strings.TrimSpace(quotationID) == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	return s.dispatches.ListForQuotation(ctx, strings.TrimSpace(quotationID))
}

// CancelDispatch withdraws a pending or failed delivery attempt from the
// redelivery sweep. Delivered and permanently failed attempts stay as
// they are.
func (s *LifecycleOrchestrator) CancelDispatch(ctx context.Context, dispatchID string) (*domain.DispatchAttempt, error) {
	dispatchID = strings.TrimSpace(dispatchID)
	if dispatchID == "" {
		return nil, fmt.Errorf("%w: dispatch id is required", domain.ErrValidation)
	}

	if err := s.dispatches.Cancel(ctx, dispatchID); err != nil {
		return nil, err
	}

	s.logger.Info("dispatch attempt cancelled",
		zap.String("dispatchId", dispatchID),
	)
	return s.dispatches.GetByID(ctx, dispatchID)
}

type SendRequest struct {
	QuotationID   string
	Recipient     string
	Cc            []string
	Bcc           []string
	CustomMessage string
	Actor         string
	IP            string
}

type SendResult struct {
	Quotation *domain.Quotation
	Link      *domain.AccessLink
	PortalURL string
	Resend    bool
}

// Send delivers a quotation to its client: allocates a document number on
// first send, renders the document, rotates the access link, transitions
// to SENT, and emails the portal URL with the rendered attachment. The
// store-side steps commit only if delivery succeeds.
func (s *LifecycleOrchestrator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	quotationID := strings.TrimSpace(req.QuotationID)
	if quotationID == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}

	q, err := s.quotations.GetByID(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	if q.ApprovalLocked {
		return nil, fmt.Errorf("%w: quotation is locked under a pending discount approval", domain.ErrConflict)
	}
	if q.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: quotation is already %s", domain.ErrConflict, q.Status)
	}
	if q.IsExpired(s.now()) {
		return nil, fmt.Errorf("%w: quotation validity window has passed", domain.ErrValidation)
	}

	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = strings.TrimSpace(q.ClientEmail)
	}
	if recipient == "" {
		return nil, fmt.Errorf("%w: recipient email is required", domain.ErrValidation)
	}

	documentNumber := q.DocumentNumber
	if documentNumber == "" {
		documentNumber, err = s.sequence.Allocate(ctx, s.now())
		if err != nil {
			return nil, err
		}
		q.DocumentNumber = documentNumber
	}

	document, err := s.renderDocument(ctx, q)
	if err != nil {
		s.metrics.IncSendFailure("render")
		return nil, err
	}

	link, err := s.links.Mint(quotationID, recipient)
	if err != nil {
		return nil, err
	}
	portalURL := s.portalBaseURL + "/portal/quotations/" + link.Token

	subject := fmt.Sprintf("Quotation %s", documentNumber)
	htmlBody := sendEmailBody(documentNumber, portalURL, req.CustomMessage)

	resend := false
	var notifyErr error
	txErr := s.uow.Do(ctx, func(tx *repository.Set) error {
		locked, err := tx.Quotations.LockByID(ctx, quotationID)
		if err != nil {
			return err
		}
		if locked.ApprovalLocked {
			return fmt.Errorf("%w: quotation is locked under a pending discount approval", domain.ErrConflict)
		}
		if locked.Status.IsTerminal() {
			return fmt.Errorf("%w: quotation is already %s", domain.ErrConflict, locked.Status)
		}

		if locked.DocumentNumber == "" {
			if err := tx.Quotations.SetDocumentNumber(ctx, quotationID, documentNumber); err != nil {
				return err
			}
		} else {
			documentNumber = locked.DocumentNumber
		}

		sentBefore, err := tx.History.CountForQuotation(ctx, quotationID, domain.StatusSent)
		if err != nil {
			return err
		}
		resend = sentBefore > 0

		if err := tx.Links.IssueExclusive(ctx, link); err != nil {
			return err
		}
		if err := tx.Quotations.SetStatus(ctx, quotationID, domain.StatusSent); err != nil {
			return err
		}

		reason := "sent"
		if resend {
			reason = "resent"
		}
		if err := s.appendHistory(ctx, tx, quotationID, locked.Status, domain.StatusSent, actor, reason, req.IP); err != nil {
			return err
		}

		attempt := &domain.DispatchAttempt{
			ID:          uuid.NewString(),
			QuotationID: quotationID,
			Kind:        domain.DispatchKindSend,
			Channel:     domain.DispatchChannelEmail,
			Status:      domain.DispatchStatusPending,
			Recipient:   recipient,
			Subject:     subject,
			Body:        htmlBody,
		}
		if err := tx.Dispatches.Create(ctx, attempt); err != nil {
			return err
		}

		notifyStart := s.now()
		ref, err := s.notify.SendEmail(ctx, notifier.Email{
			To:         recipient,
			Cc:         req.Cc,
			Bcc:        req.Bcc,
			Subject:    subject,
			HTMLBody:   htmlBody,
			Attachment: document,
			AttachName: documentNumber + ".pdf",
			AttachMime: "application/pdf",
		})
		s.metrics.ObserveNotifyDuration(s.now().Sub(notifyStart))
		if err != nil {
			notifyErr = err
			return fmt.Errorf("%w: notification delivery failed: %v", domain.ErrExternal, err)
		}

		if err := tx.Dispatches.MarkDelivered(ctx, attempt.ID, ref); err != nil {
			return err
		}
		return tx.Links.MarkSent(ctx, link.ID, s.now().UTC())
	})
	if txErr != nil {
		if notifyErr != nil {
			s.metrics.IncSendFailure("notify")
			s.recordFailedSend(ctx, quotationID, recipient, subject, htmlBody, notifyErr)
		}
		return nil, txErr
	}

	s.metrics.IncQuotationSent(resend)
	s.logger.Info("quotation sent",
		zap.String("quotationId", quotationID),
		zap.String("documentNumber", documentNumber),
		zap.String("tokenPrefix", link.TokenPrefix()),
		zap.Bool("resend", resend),
	)

	q.Status = domain.StatusSent
	q.DocumentNumber = documentNumber
	return &SendResult{
		Quotation: q,
		Link:      link,
		PortalURL: portalURL,
		Resend:    resend,
	}, nil
}

// RecordView resolves a portal token, records the visit, and moves a SENT
// quotation to VIEWED exactly once. Repeated views keep counting without
// re-transitioning.
func (s *LifecycleOrchestrator) RecordView(ctx context.Context, token, ip, userAgent string) (*domain.Quotation, *domain.AccessLink, *domain.PageView, error) {
	link, err := s.links.Validate(ctx, token)
	if err != nil {
		return nil, nil, nil, err
	}

	q, err := s.quotations.GetByID(ctx, link.QuotationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if q.IsExpired(s.now()) {
		s.logger.Info("portal access to expired quotation rejected",
			zap.String("quotationId", q.ID),
			zap.String("tokenPrefix", link.TokenPrefix()),
		)
		return nil, nil, nil, fmt.Errorf("%w: access denied", domain.ErrDenied)
	}

	view, err := s.links.RecordVisit(ctx, link, ip, userAgent)
	if err != nil {
		return nil, nil, nil, err
	}

	if q.Status == domain.StatusSent {
		err := s.uow.Do(ctx, func(tx *repository.Set) error {
			if err := tx.Quotations.UpdateStatus(ctx, q.ID, domain.StatusSent, domain.StatusViewed); err != nil {
				return err
			}
			return s.appendHistory(ctx, tx, q.ID, domain.StatusSent, domain.StatusViewed, link.Email, "viewed", ip)
		})
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return nil, nil, nil, err
		}
		if err == nil {
			q.Status = domain.StatusViewed
		}
	}

	return q, link, view, nil
}

// CloseView ends the viewing session opened by RecordView so the page
// view carries a duration. The token must still resolve to the view's
// own link.
func (s *LifecycleOrchestrator) CloseView(ctx context.Context, token, viewID string) error {
	link, err := s.links.Validate(ctx, token)
	if err != nil {
		return err
	}
	return s.links.CloseVisit(ctx, link, viewID)
}

// RecordResponse records the client's accept/reject decision and notifies
// the internal owner. The owner notification is best effort; its failure
// never rolls back the client's decision.
func (s *LifecycleOrchestrator) RecordResponse(ctx context.Context, token string, decision domain.Decision, message, ip string) (*domain.Quotation, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("%w: invalid decision", domain.ErrValidation)
	}

	link, err := s.links.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	var q *domain.Quotation
	err = s.uow.Do(ctx, func(tx *repository.Set) error {
		locked, err := tx.Quotations.LockByID(ctx, link.QuotationID)
		if err != nil {
			return err
		}
		if locked.IsExpired(s.now()) {
			return fmt.Errorf("%w: access denied", domain.ErrDenied)
		}
		if !locked.CanTransitionTo(decision.Status()) {
			return fmt.Errorf("%w: quotation is %s and accepts no response", domain.ErrConflict, locked.Status)
		}

		if err := tx.Quotations.UpdateStatus(ctx, locked.ID, locked.Status, decision.Status()); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, locked.ID, locked.Status, decision.Status(), link.Email, message, ip); err != nil {
			return err
		}

		locked.Status = decision.Status()
		q = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("client response recorded",
		zap.String("quotationId", q.ID),
		zap.String("decision", string(decision)),
	)
	s.notifyOwner(ctx, q, decision, message)
	return q, nil
}

// ApplyApproval consumes an APPROVED discount approval: sets the approved
// discount, recomputes pricing, releases the edit lock, and marks the
// approval APPLIED.
func (s *LifecycleOrchestrator) ApplyApproval(ctx context.Context, approvalID string) (*domain.Quotation, error) {
	approvalID = strings.TrimSpace(approvalID)
	if approvalID == "" {
		return nil, fmt.Errorf("%w: approval id is required", domain.ErrValidation)
	}

	var q *domain.Quotation
	err := s.uow.Do(ctx, func(tx *repository.Set) error {
		approval, err := tx.Approvals.GetByID(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.Status != domain.ApprovalStatusApproved {
			return fmt.Errorf("%w: approval is %s, only approved discounts can be applied", domain.ErrConflict, approval.Status)
		}

		locked, err := tx.Quotations.LockByID(ctx, approval.QuotationID)
		if err != nil {
			return err
		}

		s.applyPricing(locked, approval.DiscountPercent)
		if err := tx.Quotations.SetPricing(ctx, locked.ID, locked.DiscountPercent, locked.Discount, locked.Tax, locked.Total); err != nil {
			return err
		}
		if err := tx.Quotations.SetApprovalLock(ctx, locked.ID, false, nil); err != nil {
			return err
		}
		if err := tx.Approvals.MarkApplied(ctx, approvalID, s.now().UTC()); err != nil {
			return err
		}
		locked.ApprovalLocked = false
		locked.ApprovalID = nil
		q = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDocument(ctx, q.ID)
	s.logger.Info("approved discount applied",
		zap.String("approvalId", approvalID),
		zap.String("quotationId", q.ID),
		zap.String("discountPercent", q.DiscountPercent.String()),
	)
	return q, nil
}

const documentCacheTTL = 24 * time.Hour

func documentCacheKey(quotationID string) string {
	return "document:" + quotationID
}

// renderDocument returns the PDF for a quotation, reusing a cached copy
// when one exists. Cache failures degrade to a fresh render.
func (s *LifecycleOrchestrator) renderDocument(ctx context.Context, q *domain.Quotation) ([]byte, error) {
	key := documentCacheKey(q.ID)
	if s.documents != nil {
		encoded, found, err := s.documents.Get(ctx, key)
		if err != nil {
			s.logger.Warn("document cache read failed", zap.String("quotationId", q.ID), zap.Error(err))
		} else if found {
			if document, decodeErr := base64.StdEncoding.DecodeString(encoded); decodeErr == nil && len(document) > 0 {
				return document, nil
			}
		}
	}

	renderStart := s.now()
	document, err := s.render.Render(ctx, *q)
	s.metrics.ObserveRenderDuration(s.now().Sub(renderStart))
	if err != nil {
		return nil, err
	}

	if s.documents != nil {
		if err := s.documents.Set(ctx, key, base64.StdEncoding.EncodeToString(document), documentCacheTTL); err != nil {
			s.logger.Warn("document cache write failed", zap.String("quotationId", q.ID), zap.Error(err))
		}
	}
	return document, nil
}

func (s *LifecycleOrchestrator) invalidateDocument(ctx context.Context, quotationID string) {
	if s.documents == nil {
		return
	}
	if err := s.documents.Invalidate(ctx, documentCacheKey(quotationID)); err != nil {
		s.logger.Warn("document cache invalidation failed", zap.String("quotationId", quotationID), zap.Error(err))
	}
}

// applyPricing recomputes the money fields from line items, the given
// discount, and the jurisdiction tax rule.
func (s *LifecycleOrchestrator) applyPricing(q *domain.Quotation, discountPercent decimal.Decimal) {
	totals := domain.ComputeTotals(q.Lines, discountPercent)
	tax := domain.ResolveTax(totals.Taxable, q.ClientTaxCode, s.companyTaxCode, s.taxRatePercent)

	q.DiscountPercent = discountPercent
	q.Subtotal = totals.Subtotal
	q.Discount = totals.QuotationDiscount
	q.Tax = tax.Total()
	q.Total = totals.Total(tax.Total())
}

func (s *LifecycleOrchestrator) appendHistory(ctx context.Context, tx *repository.Set, quotationID string, from, to domain.Status, actor, reason, ip string) error {
	entry := &domain.StatusHistoryEntry{
		ID:          uuid.NewString(),
		QuotationID: quotationID,
		FromStatus:  from,
		ToStatus:    to,
		Actor:       actor,
	}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		entry.Reason = &trimmed
	}
	if trimmed := strings.TrimSpace(ip); trimmed != "" {
		entry.IP = &trimmed
	}
	return tx.History.Append(ctx, entry)
}

// recordFailedSend keeps an audit row for a rolled-back send. NextRetryAt
// stays unset: the client send is never retried behind the caller's back.
func (s *LifecycleOrchestrator) recordFailedSend(ctx context.Context, quotationID, recipient, subject, body string, cause error) {
	detail := cause.Error()
	attempt := &domain.DispatchAttempt{
		ID:          uuid.NewString(),
		QuotationID: quotationID,
		Kind:        domain.DispatchKindSend,
		Channel:     domain.DispatchChannelEmail,
		Status:      domain.DispatchStatusFailed,
		Recipient:   recipient,
		Subject:     subject,
		Body:        body,
		Error:       &detail,
	}
	if err := s.dispatches.Create(ctx, attempt); err != nil {
		s.logger.Error("failed to record failed send attempt",
			zap.String("quotationId", quotationID),
			zap.Error(err),
		)
	}
}

// notifyOwner emails the internal owner about a client response through
// the dispatch attempt trail so the retry scanner can pick up failures.
func (s *LifecycleOrchestrator) notifyOwner(ctx context.Context, q *domain.Quotation, decision domain.Decision, message string) {
	owner := strings.TrimSpace(q.OwnerEmail)
	if owner == "" {
		return
	}

	subject := fmt.Sprintf("Quotation %s was %s", q.DocumentNumber, strings.ToLower(string(decision.Status())))
	body := fmt.Sprintf("<p>The client has %s quotation <strong>%s</strong>.</p>", strings.ToLower(string(decision.Status())), q.DocumentNumber)
	if trimmed := strings.TrimSpace(message); trimmed != "" {
		body += fmt.Sprintf("<p>Client message: %s</p>", trimmed)
	}

	attempt := &domain.DispatchAttempt{
		ID:          uuid.NewString(),
		QuotationID: q.ID,
		Kind:        domain.DispatchKindResponse,
		Channel:     domain.DispatchChannelEmail,
		Status:      domain.DispatchStatusPending,
		Recipient:   owner,
		Subject:     subject,
		Body:        body,
	}
	if err := s.dispatches.Create(ctx, attempt); err != nil {
		s.logger.Error("failed to record owner notification attempt",
			zap.String("quotationId", q.ID),
			zap.Error(err),
		)
		return
	}

	ref, err := s.notify.SendEmail(ctx, notifier.Email{
		To:        owner,
		Subject:   subject,
		HTMLBody:  body,
		PlainText: fmt.Sprintf("The client has %s quotation %s.", strings.ToLower(string(decision.Status())), q.DocumentNumber),
	})
	if err != nil {
		retryAt := s.now().UTC().Add(time.Minute)
		if markErr := s.dispatches.MarkFailed(ctx, attempt.ID, 1, err.Error(), retryAt); markErr != nil {
			s.logger.Error("failed to mark owner notification failed",
				zap.String("attemptId", attempt.ID),
				zap.Error(markErr),
			)
		}
		s.logger.Warn("owner notification failed, queued for retry",
			zap.String("quotationId", q.ID),
			zap.Error(err),
		)
		return
	}

	if err := s.dispatches.MarkDelivered(ctx, attempt.ID, ref); err != nil {
		s.logger.Error("failed to mark owner notification delivered",
			zap.String("attemptId", attempt.ID),
			zap.Error(err),
		)
	}
}

func sendEmailBody(documentNumber, portalURL, customMessage string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<p>Quotation <strong>%s</strong> is ready for your review.</p>", documentNumber))
	if trimmed := strings.TrimSpace(customMessage); trimmed != "" {
		b.WriteString(fmt.Sprintf("<p>%s</p>", trimmed))
	}
	b.WriteString(fmt.Sprintf(`<p><a href="%s">View the quotation</a></p>`, portalURL))
	b.WriteString("<p>The link is personal and expires automatically.</p>")
	return b.String()
}
