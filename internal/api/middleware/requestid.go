package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// RequestID assigns every request an id, honoring an inbound
// X-Request-Id so callers can correlate across systems.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     "X-Request-Id",
		ContextKey: requestIDKey,
		Generator: func() string {
			return uuid.New().String()
		},
	})
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}
