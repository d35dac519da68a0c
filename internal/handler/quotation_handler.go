package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/service"
	"github.com/shopspring/decimal"
)

type QuotationService interface {
	Create(ctx context.Context, q *domain.Quotation) (*domain.Quotation, error)
	UpdateDraft(ctx context.Context, id string, lines []domain.LineItem, discountPercent decimal.Decimal, validUntil time.Time, notes string) (*domain.Quotation, error)
	Get(ctx context.Context, id string) (*domain.Quotation, error)
	History(ctx context.Context, quotationID string) ([]domain.StatusHistoryEntry, error)
	Send(ctx context.Context, req service.SendRequest) (*service.SendResult, error)
}

type LinkLister interface {
	ListForQuotation(ctx context.Context, quotationID string) ([]domain.AccessLink, error)
}

type DispatchService interface {
	DispatchHistory(ctx context.Context, quotationID string) ([]domain.DispatchAttempt, error)
	CancelDispatch(ctx context.Context, dispatchID string) (*domain.DispatchAttempt, error)
}

type QuotationHandler struct {
	service    QuotationService
	links      LinkLister
	dispatches DispatchService
}

func NewQuotationHandler(service QuotationService, links LinkLister, dispatches DispatchService) (*QuotationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("quotation service is required")
	}
	if links == nil {
		return nil, fmt.Errorf("link lister is required")
	}
	if dispatches == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &QuotationHandler{service: service, links: links, dispatches: dispatches}, nil
}

func RegisterQuotationRoutes(router fiber.Router, service QuotationService, links LinkLister, dispatches DispatchService) error {
	h, err := NewQuotationHandler(service, links, dispatches)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/quotations", h.CreateQuotation)
	v1.Get("/quotations/:id", h.GetQuotation)
	v1.Put("/quotations/:id", h.UpdateQuotation)
	v1.Post("/quotations/:id/send", h.SendQuotation)
	v1.Get("/quotations/:id/history", h.GetHistory)
	v1.Get("/quotations/:id/links", h.ListLinks)
	v1.Get("/quotations/:id/dispatches", h.ListDispatches)
	v1.Post("/dispatches/:id/cancel", h.CancelDispatch)

	return nil
}

type lineItemRequest struct {
	Description  string `json:"description"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unitPrice"`
	LineDiscount string `json:"lineDiscount,omitempty"`
}

type createQuotationRequest struct {
	ClientID        string            `json:"clientId"`
	ClientEmail     string            `json:"clientEmail"`
	ClientTaxCode   string            `json:"clientTaxCode,omitempty"`
	OwnerID         string            `json:"ownerId"`
	OwnerEmail      string            `json:"ownerEmail"`
	IssueDate       string            `json:"issueDate,omitempty"`
	ValidUntil      string            `json:"validUntil"`
	DiscountPercent string            `json:"discountPercent,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Lines           []lineItemRequest `json:"lines"`
}

type updateQuotationRequest struct {
	ValidUntil      string            `json:"validUntil"`
	DiscountPercent string            `json:"discountPercent,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Lines           []lineItemRequest `json:"lines"`
}

type sendQuotationRequest struct {
	Recipient     string   `json:"recipient,omitempty"`
	Cc            []string `json:"cc,omitempty"`
	Bcc           []string `json:"bcc,omitempty"`
	CustomMessage string   `json:"customMessage,omitempty"`
	Actor         string   `json:"actor"`
}

type lineItemResponse struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unitPrice"`
	LineDiscount string `json:"lineDiscount"`
	Amount       string `json:"amount"`
}

type quotationResponse struct {
	ID              string             `json:"id"`
	ClientID        string             `json:"clientId"`
	ClientEmail     string             `json:"clientEmail"`
	ClientTaxCode   string             `json:"clientTaxCode,omitempty"`
	OwnerID         string             `json:"ownerId"`
	OwnerEmail      string             `json:"ownerEmail"`
	Status          string             `json:"status"`
	DocumentNumber  string             `json:"documentNumber,omitempty"`
	IssueDate       string             `json:"issueDate,omitempty"`
	ValidUntil      string             `json:"validUntil,omitempty"`
	Subtotal        string             `json:"subtotal"`
	DiscountPercent string             `json:"discountPercent"`
	Discount        string             `json:"discount"`
	Tax             string             `json:"tax"`
	Total           string             `json:"total"`
	Notes           string             `json:"notes,omitempty"`
	ApprovalLocked  bool               `json:"approvalLocked"`
	Lines           []lineItemResponse `json:"lines"`
	CreatedAt       time.Time          `json:"createdAt,omitempty"`
	UpdatedAt       time.Time          `json:"updatedAt,omitempty"`
}

type sendQuotationResponse struct {
	Quotation quotationResponse `json:"quotation"`
	PortalURL string            `json:"portalUrl"`
	Resend    bool              `json:"resend"`
	LinkID    string            `json:"linkId"`
	ExpiresAt time.Time         `json:"linkExpiresAt"`
}

type historyEntryResponse struct {
	ID         string    `json:"id"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	Actor      string    `json:"actor"`
	Reason     *string   `json:"reason,omitempty"`
	IP         *string   `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// dispatchAttemptResponse keeps the rendered body out of the audit view;
// subject and failure detail are enough to trace a delivery.
type dispatchAttemptResponse struct {
	ID            string     `json:"id"`
	QuotationID   string     `json:"quotationId"`
	Kind          string     `json:"kind"`
	Channel       string     `json:"channel"`
	Status        string     `json:"status"`
	AttemptNumber int        `json:"attemptNumber"`
	Recipient     string     `json:"recipient"`
	Subject       string     `json:"subject,omitempty"`
	NextRetryAt   *time.Time `json:"nextRetryAt,omitempty"`
	Error         *string    `json:"error,omitempty"`
	ProviderRef   *string    `json:"providerRef,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type accessLinkResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Active        bool       `json:"active"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	FirstViewedAt *time.Time `json:"firstViewedAt,omitempty"`
	LastViewedAt  *time.Time `json:"lastViewedAt,omitempty"`
	ViewCount     int        `json:"viewCount"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (h *QuotationHandler) CreateQuotation(c *fiber.Ctx) error {
	var req createQuotationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	q, err := requestToDomainQuotation(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), q)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toQuotationResponse(created))
}

func (h *QuotationHandler) GetQuotation(c *fiber.Ctx) error {
	q, err := h.service.Get(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toQuotationResponse(q))
}

func (h *QuotationHandler) UpdateQuotation(c *fiber.Ctx) error {
	var req updateQuotationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	lines, err := requestToDomainLines(req.Lines)
	if err != nil {
		return toHTTPError(err)
	}
	discountPercent, err := parseDecimalField(req.DiscountPercent, "discountPercent")
	if err != nil {
		return toHTTPError(err)
	}
	validUntil, err := parseDateField(req.ValidUntil, "validUntil")
	if err != nil {
		return toHTTPError(err)
	}

	updated, err := h.service.UpdateDraft(c.Context(), strings.TrimSpace(c.Params("id")), lines, discountPercent, validUntil, strings.TrimSpace(req.Notes))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toQuotationResponse(updated))
}

func (h *QuotationHandler) SendQuotation(c *fiber.Ctx) error {
	var req sendQuotationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Send(c.Context(), service.SendRequest{
		QuotationID:   strings.TrimSpace(c.Params("id")),
		Recipient:     strings.TrimSpace(req.Recipient),
		Cc:            req.Cc,
		Bcc:           req.Bcc,
		CustomMessage: req.CustomMessage,
		Actor:         strings.TrimSpace(req.Actor),
		IP:            c.IP(),
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(sendQuotationResponse{
		Quotation: toQuotationResponse(result.Quotation),
		PortalURL: result.PortalURL,
		Resend:    result.Resend,
		LinkID:    result.Link.ID,
		ExpiresAt: result.Link.ExpiresAt,
	})
}

func (h *QuotationHandler) GetHistory(c *fiber.Ctx) error {
	entries, err := h.service.History(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, historyEntryResponse{
			ID:         entry.ID,
			FromStatus: entry.FromStatus.String(),
			ToStatus:   entry.ToStatus.String(),
			Actor:      entry.Actor,
			Reason:     entry.Reason,
			IP:         entry.IP,
			CreatedAt:  entry.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

// ListLinks exposes link metadata for internal audit. Tokens never leave
// the send flow, so the response omits them.
// ListDispatches exposes the delivery attempt trail of a quotation,
// oldest first.
func (h *QuotationHandler) ListDispatches(c *fiber.Ctx) error {
	attempts, err := h.dispatches.DispatchHistory(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]dispatchAttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, toDispatchAttemptResponse(attempt))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

// CancelDispatch withdraws a pending or failed delivery attempt from the
// redelivery sweep.
func (h *QuotationHandler) CancelDispatch(c *fiber.Ctx) error {
	attempt, err := h.dispatches.CancelDispatch(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDispatchAttemptResponse(*attempt))
}

func (h *QuotationHandler) ListLinks(c *fiber.Ctx) error {
	links, err := h.links.ListForQuotation(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]accessLinkResponse, 0, len(links))
	for _, link := range links {
		items = append(items, accessLinkResponse{
			ID:            link.ID,
			Email:         link.Email,
			Active:        link.Active,
			ExpiresAt:     link.ExpiresAt,
			SentAt:        link.SentAt,
			FirstViewedAt: link.FirstViewedAt,
			LastViewedAt:  link.LastViewedAt,
			ViewCount:     link.ViewCount,
			CreatedAt:     link.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

func requestToDomainQuotation(req createQuotationRequest) (*domain.Quotation, error) {
	lines, err := requestToDomainLines(req.Lines)
	if err != nil {
		return nil, err
	}
	discountPercent, err := parseDecimalField(req.DiscountPercent, "discountPercent")
	if err != nil {
		return nil, err
	}
	validUntil, err := parseDateField(req.ValidUntil, "validUntil")
	if err != nil {
		return nil, err
	}

	q := &domain.Quotation{
		ClientID:        strings.TrimSpace(req.ClientID),
		ClientEmail:     strings.TrimSpace(req.ClientEmail),
		ClientTaxCode:   strings.TrimSpace(req.ClientTaxCode),
		OwnerID:         strings.TrimSpace(req.OwnerID),
		OwnerEmail:      strings.TrimSpace(req.OwnerEmail),
		ValidUntil:      validUntil,
		DiscountPercent: discountPercent,
		Notes:           strings.TrimSpace(req.Notes),
		Lines:           lines,
	}

	if strings.TrimSpace(req.IssueDate) != "" {
		issueDate, err := parseDateField(req.IssueDate, "issueDate")
		if err != nil {
			return nil, err
		}
		q.IssueDate = issueDate
	}

	return q, nil
}

func requestToDomainLines(items []lineItemRequest) ([]domain.LineItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: lines is required", domain.ErrValidation)
	}

	lines := make([]domain.LineItem, 0, len(items))
	for i, item := range items {
		quantity, err := parseDecimalField(item.Quantity, fmt.Sprintf("lines[%d].quantity", i))
		if err != nil {
			return nil, err
		}
		unitPrice, err := parseDecimalField(item.UnitPrice, fmt.Sprintf("lines[%d].unitPrice", i))
		if err != nil {
			return nil, err
		}
		lineDiscount, err := parseDecimalField(item.LineDiscount, fmt.Sprintf("lines[%d].lineDiscount", i))
		if err != nil {
			return nil, err
		}

		lines = append(lines, domain.LineItem{
			Description:  strings.TrimSpace(item.Description),
			Quantity:     quantity,
			UnitPrice:    unitPrice,
			LineDiscount: lineDiscount,
			Amount:       quantity.Mul(unitPrice).Sub(lineDiscount),
		})
	}
	return lines, nil
}

func parseDecimalField(value, field string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal number", domain.ErrValidation, field)
	}
	return d, nil
}

func parseDateField(value, field string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}

	t, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a YYYY-MM-DD date", domain.ErrValidation, field)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func toQuotationResponse(q *domain.Quotation) quotationResponse {
	if q == nil {
		return quotationResponse{}
	}

	lines := make([]lineItemResponse, 0, len(q.Lines))
	for _, line := range q.Lines {
		lines = append(lines, lineItemResponse{
			ID:           line.ID,
			Description:  line.Description,
			Quantity:     line.Quantity.String(),
			UnitPrice:    line.UnitPrice.String(),
			LineDiscount: line.LineDiscount.String(),
			Amount:       line.Amount.String(),
		})
	}

	return quotationResponse{
		ID:              q.ID,
		ClientID:        q.ClientID,
		ClientEmail:     q.ClientEmail,
		ClientTaxCode:   q.ClientTaxCode,
		OwnerID:         q.OwnerID,
		OwnerEmail:      q.OwnerEmail,
		Status:          q.Status.String(),
		DocumentNumber:  q.DocumentNumber,
		IssueDate:       formatDate(q.IssueDate),
		ValidUntil:      formatDate(q.ValidUntil),
		Subtotal:        q.Subtotal.String(),
		DiscountPercent: q.DiscountPercent.String(),
		Discount:        q.Discount.String(),
		Tax:             q.Tax.String(),
		Total:           q.Total.String(),
		Notes:           q.Notes,
		ApprovalLocked:  q.ApprovalLocked,
		Lines:           lines,
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
}

func toDispatchAttemptResponse(attempt domain.DispatchAttempt) dispatchAttemptResponse {
	return dispatchAttemptResponse{
		ID:            attempt.ID,
		QuotationID:   attempt.QuotationID,
		Kind:          string(attempt.Kind),
		Channel:       string(attempt.Channel),
		Status:        attempt.Status.String(),
		AttemptNumber: attempt.AttemptNumber,
		Recipient:     attempt.Recipient,
		Subject:       attempt.Subject,
		NextRetryAt:   attempt.NextRetryAt,
		Error:         attempt.Error,
		ProviderRef:   attempt.ProviderRef,
		CreatedAt:     attempt.CreatedAt,
		UpdatedAt:     attempt.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDenied):
		return fiber.NewError(fiber.StatusUnauthorized, "access denied")
	case errors.Is(err, domain.ErrExternal):
		return fiber.NewError(fiber.StatusBadGateway, "an upstream service failed")
	default:
		return err
	}
}
