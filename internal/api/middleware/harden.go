package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// HardenToolPaths rejects dot-segments and encoded separators under the
// tool namespaces. fasthttp percent-decodes and resolves dot-segments
// before routing, so the checks run against the original request path;
// a traversal attempt must get a 400, never a silently normalized route.
func HardenToolPaths() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.ToLower(string(c.Request().URI().PathOriginal()))
		if !toolPath(raw) && !toolPath(c.Path()) {
			return c.Next()
		}

		if strings.Contains(raw, "..") ||
			strings.Contains(raw, "/./") || strings.HasSuffix(raw, "/.") ||
			strings.Contains(raw, "%2e") || strings.Contains(raw, "%2f") ||
			strings.Contains(raw, "%5c") || strings.Contains(raw, "%25") ||
			strings.Contains(raw, `\`) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid path")
		}

		return c.Next()
	}
}

func toolPath(p string) bool {
	return strings.HasPrefix(p, "/mcp") || strings.HasPrefix(p, "/ws")
}
