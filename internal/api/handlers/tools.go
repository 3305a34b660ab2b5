package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/toolgate/toolgate/internal/services"
)

// ListTools handles GET /api/v1/tools.
func ListTools(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"tools": svc.Invoker.Tools()})
	}
}
