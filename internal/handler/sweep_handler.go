package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SweepRunner triggers a reminder sweep on demand. The scheduler runs the
// same sweeps on its own ticker; the endpoints exist for operators.
type SweepRunner interface {
	RunUnviewedSweep(ctx context.Context, now time.Time) (int, error)
	RunFollowUpSweep(ctx context.Context, now time.Time) (int, error)
}

type SweepHandler struct {
	runner SweepRunner
}

func NewSweepHandler(runner SweepRunner) (*SweepHandler, error) {
	if runner == nil {
		return nil, fmt.Errorf("sweep runner is required")
	}
	return &SweepHandler{runner: runner}, nil
}

func RegisterSweepRoutes(router fiber.Router, runner SweepRunner) error {
	h, err := NewSweepHandler(runner)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/sweeps/unviewed", h.RunUnviewed)
	v1.Post("/sweeps/follow-up", h.RunFollowUp)

	return nil
}

func (h *SweepHandler) RunUnviewed(c *fiber.Ctx) error {
	sent, err := h.runner.RunUnviewedSweep(c.Context(), time.Now().UTC())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"sweep": "unviewed",
		"sent":  sent,
	})
}

func (h *SweepHandler) RunFollowUp(c *fiber.Ctx) error {
	sent, err := h.runner.RunFollowUpSweep(c.Context(), time.Now().UTC())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"sweep": "follow-up",
		"sent":  sent,
	})
}
