package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// RequestTracking assigns every request an identifier, honouring one the
// caller already supplied, and makes it available to the handler chain
// through the user context. The identifier is echoed back in the response
// so clients can quote it when reporting a failed send or portal visit.
func RequestTracking() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(requestIDHeader, requestID)
		c.SetUserContext(observability.WithRequestID(c.UserContext(), requestID))

		return c.Next()
	}
}
