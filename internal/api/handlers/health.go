package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/services"
)

// Health handles GET /health: process liveness, nothing more.
func Health() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "toolgate",
		})
	}
}

// Ready handles GET /ready. Native tools need nothing beyond a loaded
// config; if any tool runs in a container the Docker daemon must answer
// a ping, otherwise the instance reports unready.
func Ready(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tools := svc.Invoker.Tools()

		needsDocker := false
		for _, t := range tools {
			if t.Runtime == models.RuntimeContainer {
				needsDocker = true
				break
			}
		}

		runtimes := fiber.Map{"native": true}
		if needsDocker {
			if err := svc.Invoker.Ready(c.Context()); err != nil {
				runtimes["container"] = false
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"ready":    false,
					"reason":   "docker_unavailable",
					"error":    err.Error(),
					"runtimes": runtimes,
				})
			}
			runtimes["container"] = true
		}

		return c.JSON(fiber.Map{
			"ready":    true,
			"tools":    len(tools),
			"runtimes": runtimes,
		})
	}
}
