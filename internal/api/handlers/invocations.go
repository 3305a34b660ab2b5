package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/toolgate/toolgate/internal/services"
)

// ListInvocations handles GET /api/v1/invocations. With audit disabled
// the list is simply empty.
func ListInvocations(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 0)

		recs, err := svc.Audit.Recent(c.Context(), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "audit query failed")
		}
		return c.JSON(fiber.Map{"invocations": recs})
	}
}
