package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 64
)

// RequestID tags each request with an id, reusing a sane one supplied by the
// caller. The id is echoed back and picked up by the audit log.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(requestIDHeader, reqID)
		return c.Next()
	}
}
