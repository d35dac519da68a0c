package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
)

// responseVerificationWindow bounds how old a passcode verification may be
// when the client submits an accept/reject decision.
const responseVerificationWindow = 15 * time.Minute

type PortalService interface {
	RecordView(ctx context.Context, token, ip, userAgent string) (*domain.Quotation, *domain.AccessLink, *domain.PageView, error)
	CloseView(ctx context.Context, token, viewID string) error
	RecordResponse(ctx context.Context, token string, decision domain.Decision, message, ip string) (*domain.Quotation, error)
}

type PortalAuthenticator interface {
	Issue(ctx context.Context, link *domain.AccessLink, ip string) (string, error)
	Verify(ctx context.Context, link *domain.AccessLink, suppliedCode, ip string) (bool, error)
	HasRecentVerification(ctx context.Context, link *domain.AccessLink, window time.Duration) (bool, error)
}

type LinkValidator interface {
	Validate(ctx context.Context, token string) (*domain.AccessLink, error)
}

type PortalHandler struct {
	portal PortalService
	auth   PortalAuthenticator
	links  LinkValidator
}

func NewPortalHandler(portal PortalService, auth PortalAuthenticator, links LinkValidator) (*PortalHandler, error) {
	if portal == nil {
		return nil, fmt.Errorf("portal service is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("portal authenticator is required")
	}
	if links == nil {
		return nil, fmt.Errorf("link validator is required")
	}
	return &PortalHandler{portal: portal, auth: auth, links: links}, nil
}

func RegisterPortalRoutes(router fiber.Router, portal PortalService, auth PortalAuthenticator, links LinkValidator) error {
	h, err := NewPortalHandler(portal, auth, links)
	if err != nil {
		return err
	}

	group := router.Group("/portal/quotations/:token")
	group.Get("/", h.ViewQuotation)
	group.Post("/view/close", h.CloseView)
	group.Post("/otp", h.RequestPasscode)
	group.Post("/otp/verify", h.VerifyPasscode)
	group.Post("/response", h.SubmitResponse)

	return nil
}

type verifyPasscodeRequest struct {
	Code string `json:"code"`
}

type closeViewRequest struct {
	ViewID string `json:"viewId"`
}

type submitResponseRequest struct {
	Decision string `json:"decision"`
	Message  string `json:"message,omitempty"`
}

// portalQuotationResponse is the client-facing projection. Internal owner
// identifiers and the approval state stay out of it.
type portalQuotationResponse struct {
	DocumentNumber  string             `json:"documentNumber"`
	Status          string             `json:"status"`
	IssueDate       string             `json:"issueDate,omitempty"`
	ValidUntil      string             `json:"validUntil,omitempty"`
	Subtotal        string             `json:"subtotal"`
	DiscountPercent string             `json:"discountPercent"`
	Discount        string             `json:"discount"`
	Tax             string             `json:"tax"`
	Total           string             `json:"total"`
	Notes           string             `json:"notes,omitempty"`
	Lines           []lineItemResponse `json:"lines"`
}

// portalViewResponse extends the quotation projection with the opened
// page view, which the client echoes back to close its session.
type portalViewResponse struct {
	portalQuotationResponse
	ViewID string `json:"viewId,omitempty"`
}

func (h *PortalHandler) ViewQuotation(c *fiber.Ctx) error {
	q, _, view, err := h.portal.RecordView(c.Context(), portalToken(c), c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return toHTTPError(err)
	}

	resp := portalViewResponse{portalQuotationResponse: toPortalQuotationResponse(q)}
	if view != nil {
		resp.ViewID = view.ID
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *PortalHandler) CloseView(c *fiber.Ctx) error {
	var req closeViewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.portal.CloseView(c.Context(), portalToken(c), strings.TrimSpace(req.ViewID)); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "closed",
	})
}

func (h *PortalHandler) RequestPasscode(c *fiber.Ctx) error {
	link, err := h.links.Validate(c.Context(), portalToken(c))
	if err != nil {
		return toHTTPError(err)
	}

	if _, err := h.auth.Issue(c.Context(), link, c.IP()); err != nil {
		return toHTTPError(err)
	}

	// The code travels by email only.
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "sent",
	})
}

func (h *PortalHandler) VerifyPasscode(c *fiber.Ctx) error {
	var req verifyPasscodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	link, err := h.links.Validate(c.Context(), portalToken(c))
	if err != nil {
		return toHTTPError(err)
	}

	ok, err := h.auth.Verify(c.Context(), link, strings.TrimSpace(req.Code), c.IP())
	if err != nil {
		return toHTTPError(err)
	}
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "access denied")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "verified",
	})
}

func (h *PortalHandler) SubmitResponse(c *fiber.Ctx) error {
	var req submitResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	decision, err := domain.ParseDecisionFromString(req.Decision)
	if err != nil {
		return toHTTPError(err)
	}

	link, err := h.links.Validate(c.Context(), portalToken(c))
	if err != nil {
		return toHTTPError(err)
	}

	verified, err := h.auth.HasRecentVerification(c.Context(), link, responseVerificationWindow)
	if err != nil {
		return toHTTPError(err)
	}
	if !verified {
		return fiber.NewError(fiber.StatusUnauthorized, "access denied")
	}

	q, err := h.portal.RecordResponse(c.Context(), portalToken(c), decision, strings.TrimSpace(req.Message), c.IP())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPortalQuotationResponse(q))
}

func portalToken(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("token"))
}

func toPortalQuotationResponse(q *domain.Quotation) portalQuotationResponse {
	if q == nil {
		return portalQuotationResponse{}
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

	return portalQuotationResponse{
		DocumentNumber:  q.DocumentNumber,
		Status:          q.Status.String(),
		IssueDate:       formatDate(q.IssueDate),
		ValidUntil:      formatDate(q.ValidUntil),
		Subtotal:        q.Subtotal.String(),
		DiscountPercent: q.DiscountPercent.String(),
		Discount:        q.Discount.String(),
		Tax:             q.Tax.String(),
		Total:           q.Total.String(),
		Notes:           q.Notes,
		Lines:           lines,
	}
}
