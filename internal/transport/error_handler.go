package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"go.uber.org/zap"
)

// ErrorHandler maps the domain error taxonomy onto HTTP statuses. Denied
// portal access always renders the same generic body; the real reason is
// only ever logged server side.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := err.Error()

		switch {
		case errors.Is(err, domain.ErrValidation):
			code = fiber.StatusBadRequest
		case errors.Is(err, domain.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, domain.ErrConflict):
			code = fiber.StatusConflict
		case errors.Is(err, domain.ErrDenied):
			code = fiber.StatusUnauthorized
			message = "access denied"
		case errors.Is(err, domain.ErrExternal):
			code = fiber.StatusBadGateway
			message = "an upstream service failed"
		default:
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
		}

		observability.RequestLogger(logger, c.UserContext()).Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
