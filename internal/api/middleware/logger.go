package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// RequestLogger emits one structured line per request. Health probes are
// skipped; they would drown everything else at typical scrape intervals.
func RequestLogger(log *logrus.Logger) fiber.Handler {
	skip := []string{"/health", "/ready"}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, s := range skip {
			if path == s {
				return c.Next()
			}
		}

		start := time.Now()
		err := c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":      c.Method(),
			"path":        path,
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  GetRequestID(c),
			"ip":          c.IP(),
		})
		if p := Principal(c); p != "" {
			entry = entry.WithField("principal", p)
		}

		switch {
		case err != nil:
			entry.WithError(err).Warn("request failed")
		case c.Response().StatusCode() >= fiber.StatusInternalServerError:
			entry.Error("request")
		case c.Response().StatusCode() >= fiber.StatusBadRequest:
			entry.Warn("request")
		case strings.HasPrefix(path, "/mcp") || strings.HasPrefix(path, "/ws"):
			// Tool runs already log through the invoker with more detail.
			entry.Debug("request")
		default:
			entry.Info("request")
		}
		return err
	}
}
