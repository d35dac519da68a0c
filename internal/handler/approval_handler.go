package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/shopspring/decimal"
)

type ApprovalService interface {
	RequestApproval(ctx context.Context, quotationID, requesterID string, discountPercent decimal.Decimal, reason string) (*domain.DiscountApproval, error)
	Approve(ctx context.Context, approvalID, actorID string, role domain.Role, comments string) (*domain.DiscountApproval, error)
	Reject(ctx context.Context, approvalID, actorID string, role domain.Role, comments string) (*domain.DiscountApproval, error)
	Escalate(ctx context.Context, approvalID, actorID string, role domain.Role, newApproverID string) (*domain.DiscountApproval, error)
	GetByID(ctx context.Context, approvalID string) (*domain.DiscountApproval, error)
}

// ApprovalApplier folds an approved discount back into the quotation.
type ApprovalApplier interface {
	ApplyApproval(ctx context.Context, approvalID string) (*domain.Quotation, error)
}

type ApprovalHandler struct {
	service ApprovalService
	applier ApprovalApplier
}

func NewApprovalHandler(service ApprovalService, applier ApprovalApplier) (*ApprovalHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("approval service is required")
	}
	if applier == nil {
		return nil, fmt.Errorf("approval applier is required")
	}
	return &ApprovalHandler{service: service, applier: applier}, nil
}

func RegisterApprovalRoutes(router fiber.Router, service ApprovalService, applier ApprovalApplier) error {
	h, err := NewApprovalHandler(service, applier)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/quotations/:id/approvals", h.RequestApproval)
	v1.Get("/approvals/:id", h.GetApproval)
	v1.Post("/approvals/:id/approve", h.ApproveApproval)
	v1.Post("/approvals/:id/reject", h.RejectApproval)
	v1.Post("/approvals/:id/escalate", h.EscalateApproval)
	v1.Post("/approvals/:id/apply", h.ApplyApproval)

	return nil
}

type requestApprovalRequest struct {
	RequesterID     string `json:"requesterId"`
	DiscountPercent string `json:"discountPercent"`
	Reason          string `json:"reason,omitempty"`
}

type resolveApprovalRequest struct {
	ActorID  string `json:"actorId"`
	Role     string `json:"role"`
	Comments string `json:"comments,omitempty"`
}

type escalateApprovalRequest struct {
	ActorID       string `json:"actorId"`
	Role          string `json:"role"`
	NewApproverID string `json:"newApproverId,omitempty"`
}

type approvalResponse struct {
	ID               string     `json:"id"`
	QuotationID      string     `json:"quotationId"`
	RequesterID      string     `json:"requesterId"`
	ApproverID       *string    `json:"approverId,omitempty"`
	Status           string     `json:"status"`
	DiscountPercent  string     `json:"discountPercent"`
	ThresholdCrossed string     `json:"thresholdCrossed"`
	Tier             string     `json:"tier"`
	Escalated        bool       `json:"escalated"`
	Reason           string     `json:"reason,omitempty"`
	Comments         string     `json:"comments,omitempty"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func (h *ApprovalHandler) RequestApproval(c *fiber.Ctx) error {
	var req requestApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	discountPercent, err := parseDecimalField(req.DiscountPercent, "discountPercent")
	if err != nil {
		return toHTTPError(err)
	}

	approval, err := h.service.RequestApproval(
		c.Context(),
		strings.TrimSpace(c.Params("id")),
		strings.TrimSpace(req.RequesterID),
		discountPercent,
		strings.TrimSpace(req.Reason),
	)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toApprovalResponse(approval))
}

func (h *ApprovalHandler) GetApproval(c *fiber.Ctx) error {
	approval, err := h.service.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toApprovalResponse(approval))
}

func (h *ApprovalHandler) ApproveApproval(c *fiber.Ctx) error {
	return h.resolve(c, h.service.Approve)
}

func (h *ApprovalHandler) RejectApproval(c *fiber.Ctx) error {
	return h.resolve(c, h.service.Reject)
}

func (h *ApprovalHandler) resolve(c *fiber.Ctx, fn func(ctx context.Context, approvalID, actorID string, role domain.Role, comments string) (*domain.DiscountApproval, error)) error {
	var req resolveApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	role, err := domain.ParseRoleFromString(req.Role)
	if err != nil {
		return toHTTPError(err)
	}

	approval, err := fn(c.Context(), strings.TrimSpace(c.Params("id")), strings.TrimSpace(req.ActorID), role, strings.TrimSpace(req.Comments))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toApprovalResponse(approval))
}

func (h *ApprovalHandler) EscalateApproval(c *fiber.Ctx) error {
	var req escalateApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	role, err := domain.ParseRoleFromString(req.Role)
	if err != nil {
		return toHTTPError(err)
	}

	approval, err := h.service.Escalate(c.Context(), strings.TrimSpace(c.Params("id")), strings.TrimSpace(req.ActorID), role, strings.TrimSpace(req.NewApproverID))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toApprovalResponse(approval))
}

func (h *ApprovalHandler) ApplyApproval(c *fiber.Ctx) error {
	q, err := h.applier.ApplyApproval(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toQuotationResponse(q))
}

func toApprovalResponse(a *domain.DiscountApproval) approvalResponse {
	if a == nil {
		return approvalResponse{}
	}

	return approvalResponse{
		ID:               a.ID,
		QuotationID:      a.QuotationID,
		RequesterID:      a.RequesterID,
		ApproverID:       a.ApproverID,
		Status:           a.Status.String(),
		DiscountPercent:  a.DiscountPercent.String(),
		ThresholdCrossed: a.ThresholdCrossed.String(),
		Tier:             string(a.Tier),
		Escalated:        a.Escalated,
		Reason:           a.Reason,
		Comments:         a.Comments,
		ResolvedAt:       a.ResolvedAt,
		CreatedAt:        a.CreatedAt,
	}
}
