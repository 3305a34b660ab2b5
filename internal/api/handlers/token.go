package handlers

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/toolgate/toolgate/internal/auth"
)

// ExchangeToken handles POST /auth/token: a valid API key buys a
// short-lived token, so the key itself stays off the wire afterwards.
// The key may come in the body or as a bearer header.
func ExchangeToken(a *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !a.Enabled() {
			return fiber.NewError(fiber.StatusBadRequest, "authentication is disabled")
		}

		var req struct {
			APIKey string `json:"api_key"`
		}
		if body := bytes.TrimSpace(c.Body()); len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}

		key := req.APIKey
		if key == "" {
			key = auth.FromBearer(c.Get(fiber.HeaderAuthorization))
		}

		token, expires, err := a.ExchangeKey(key)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid api key",
			})
		}

		return c.JSON(fiber.Map{
			"token":      token,
			"token_type": "Bearer",
			"expires_at": expires.UTC().Format(time.RFC3339),
		})
	}
}
