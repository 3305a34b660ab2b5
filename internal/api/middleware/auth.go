package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/toolgate/toolgate/internal/auth"
)

// AuthRequired rejects requests without a valid bearer credential. When
// auth is disabled in config every request passes through.
func AuthRequired(a *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !a.Enabled() {
			return c.Next()
		}

		cred := auth.FromBearer(c.Get(fiber.HeaderAuthorization))
		if cred == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication required",
			})
		}

		principal, err := a.VerifyBearer(cred)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid credentials",
			})
		}

		c.Locals("principal", principal)
		return c.Next()
	}
}

// WSUpgrade gates the websocket namespace: only upgrade requests come
// through, and they authenticate before the connection is hijacked.
// Browsers cannot set headers on websockets, so a token query parameter
// is accepted as well.
func WSUpgrade(a *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		if a.Enabled() {
			cred := c.Query("token")
			if cred == "" {
				cred = auth.FromBearer(c.Get(fiber.HeaderAuthorization))
			}

			principal, err := a.VerifyBearer(cred)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "authentication required",
				})
			}
			c.Locals("principal", principal)
		}

		return c.Next()
	}
}

// Principal returns the authenticated key name, or "" when anonymous.
func Principal(c *fiber.Ctx) string {
	if p, ok := c.Locals("principal").(string); ok {
		return p
	}
	return ""
}
