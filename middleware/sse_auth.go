// middleware/sse_auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// StreamUserMiddleware is UserContextMiddleware for EventSource clients, which cannot send
// custom headers: the user comes from the X-User-ID header when present, else from the
// user_id query parameter.
//
// Usage:
//
//	api.Get("/game/sessions/:id/stream", middleware.StreamUserMiddleware(), h.Stream)
func StreamUserMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			log.Printf("[SSEAuth] ❌ Missing user for stream %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "missing user_id in query",
			})
		}

		c.Locals(userIDLocal, userID)
		c.Locals(userRolesLocal, parseRoles(c.Get("X-User-Roles")))
		return c.Next()
	}
}
