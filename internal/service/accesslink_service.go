package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultLinkExpiry = 90 * 24 * time.Hour

// AccessLinkManager owns the single-active-link invariant, token
// validation, and view recording for the client portal.
type AccessLinkManager struct {
	links   repository.AccessLinkRepository
	tokens  TokenIssuer
	logger  *zap.Logger
	metrics *observability.Metrics
	expiry  time.Duration
	now     func() time.Time
}

func NewAccessLinkManager(
	links repository.AccessLinkRepository,
	tokens TokenIssuer,
	expiry time.Duration,
	logger *zap.Logger,
) (*AccessLinkManager, error) {
	if links == nil {
		return nil, fmt.Errorf("access link repository is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if expiry <= 0 {
		expiry = defaultLinkExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AccessLinkManager{
		links:  links,
		tokens: tokens,
		logger: logger,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

func (m *AccessLinkManager) SetMetrics(metrics *observability.Metrics) {
	if m == nil {
		return
	}
	m.metrics = metrics
}

// Mint builds an unsaved link with a fresh token and the configured
// expiry horizon. The caller persists it, usually through IssueExclusive
// inside a larger transaction.
func (m *AccessLinkManager) Mint(quotationID, email string) (*domain.AccessLink, error) {
	quotationID = strings.TrimSpace(quotationID)
	email = strings.TrimSpace(email)
	if quotationID == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: recipient email is required", domain.ErrValidation)
	}

	token, err := m.tokens.NewToken()
	if err != nil {
		return nil, err
	}

	return &domain.AccessLink{
		ID:          uuid.NewString(),
		QuotationID: quotationID,
		Email:       email,
		Token:       token,
		Active:      true,
		ExpiresAt:   m.now().UTC().Add(m.expiry),
	}, nil
}

// Issue mints and persists a new link, deactivating every previously
// active link for the quotation in the same transaction.
func (m *AccessLinkManager) Issue(ctx context.Context, quotationID, email string) (*domain.AccessLink, error) {
	link, err := m.Mint(quotationID, email)
	if err != nil {
		return nil, err
	}
	if err := m.links.IssueExclusive(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// Validate resolves a portal token to a usable link. Every failure mode
// collapses into ErrDenied toward the caller; the reason is only logged,
// alongside the loggable token prefix, never the full secret.
func (m *AccessLinkManager) Validate(ctx context.Context, token string) (*domain.AccessLink, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		m.metrics.IncLinkValidation("invalid")
		return nil, fmt.Errorf("%w: access denied", domain.ErrDenied)
	}

	link, err := m.links.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.logger.Info("portal token rejected",
				zap.String("reason", "unknown token"),
			)
			m.metrics.IncLinkValidation("invalid")
			return nil, fmt.Errorf("%w: access denied", domain.ErrDenied)
		}
		return nil, err
	}

	if !link.IsUsable(m.now().UTC()) {
		reason := "deactivated"
		if link.Active {
			reason = "expired"
		}
		m.logger.Info("portal token rejected",
			zap.String("tokenPrefix", link.TokenPrefix()),
			zap.String("quotationId", link.QuotationID),
			zap.String("reason", reason),
		)
		m.metrics.IncLinkValidation(reason)
		return nil, fmt.Errorf("%w: access denied", domain.ErrDenied)
	}

	m.metrics.IncLinkValidation("ok")
	return link, nil
}

// RecordVisit bumps the link's view counters and opens a page-view record
// for session analytics.
func (m *AccessLinkManager) RecordVisit(ctx context.Context, link *domain.AccessLink, ip, userAgent string) (*domain.PageView, error) {
	if link == nil {
		return nil, fmt.Errorf("%w: link is required", domain.ErrValidation)
	}

	at := m.now().UTC()
	if err := m.links.RecordVisit(ctx, link.ID, ip, at); err != nil {
		return nil, err
	}

	view := &domain.PageView{
		ID:           uuid.NewString(),
		AccessLinkID: link.ID,
		IP:           ip,
		UserAgent:    userAgent,
		StartedAt:    at,
	}
	if err := m.links.CreatePageView(ctx, view); err != nil {
		// The visit itself is already recorded; a lost analytics row is
		// not worth failing the portal request.
		m.logger.Warn("failed to open page view",
			zap.String("linkId", link.ID),
			zap.Error(err),
		)
		return nil, nil
	}
	return view, nil
}

// CloseVisit stamps the end of a portal viewing session. The view must
// belong to the presented link.
func (m *AccessLinkManager) CloseVisit(ctx context.Context, link *domain.AccessLink, viewID string) error {
	if link == nil {
		return fmt.Errorf("%w: link is required", domain.ErrValidation)
	}
	if strings.TrimSpace(viewID) == "" {
		return fmt.Errorf("%w: view id is required", domain.ErrValidation)
	}
	return m.links.ClosePageView(ctx, strings.TrimSpace(viewID), link.ID, m.now().UTC())
}

// ListForQuotation returns the full link history, newest first.
func (m *AccessLinkManager) ListForQuotation(ctx context.Context, quotationID string) ([]domain.AccessLink, error) {
	if strings.TrimSpace(quotationID) == "" {
		return nil, fmt.Errorf("%w: quotation id is required", domain.ErrValidation)
	}
	return m.links.ListForQuotation(ctx, strings.TrimSpace(quotationID))
}
