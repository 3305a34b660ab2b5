// Package api assembles the HTTP surface: SSE and websocket tool relays
// plus the listing, auth and health endpoints around them.
package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/api/handlers"
	"github.com/toolgate/toolgate/internal/api/middleware"
	"github.com/toolgate/toolgate/internal/auth"
	"github.com/toolgate/toolgate/internal/services"
)

const apiRatePerMinute = 100

// New builds the fiber app with all routes and middleware wired.
func New(svc *services.Services, authn *auth.Authenticator, log *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "toolgate",
		BodyLimit:             svc.Config.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          0, // SSE streams are open-ended
		IdleTimeout:           60 * time.Second,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger(log))
	app.Use(middleware.HardenToolPaths())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	app.Get("/health", handlers.Health())
	app.Get("/ready", handlers.Ready(svc))
	app.Post("/auth/token", middleware.AuthRateLimit(), handlers.ExchangeToken(authn))

	guard := middleware.AuthRequired(authn)
	rate := middleware.APIRateLimit(apiRatePerMinute)

	apiv1 := app.Group("/api/v1", guard, rate)
	apiv1.Get("/tools", handlers.ListTools(svc))
	apiv1.Get("/invocations", handlers.ListInvocations(svc))

	mcp := app.Group("/mcp", guard, rate)
	mcp.Post("/:tool", handlers.InvokeSSE(svc, log))

	app.Use("/ws", middleware.WSUpgrade(authn))
	app.Get("/ws/:tool", websocket.New(handlers.InvokeWS(svc, log)))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
