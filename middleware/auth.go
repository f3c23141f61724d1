// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

const (
	userIDLocal    = "user_id"
	userRolesLocal = "user_roles"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
// Every route it guards requires X-User-ID.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "missing X-User-ID: request must come through gateway with auth context",
			})
		}

		c.Locals(userIDLocal, userID)
		c.Locals(userRolesLocal, parseRoles(c.Get("X-User-Roles")))
		return c.Next()
	}
}

func parseRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(strings.ToLower(r))
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// Actor is the caller identity attached by UserContextMiddleware or StreamUserMiddleware.
type Actor struct {
	UserID string
	Roles  []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Privileged reports whether the actor may act on behalf of other users.
func (a Actor) Privileged() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleService)
}

// CanActFor reports whether the actor may touch userID's data.
func (a Actor) CanActFor(userID string) bool {
	return a.UserID == userID || a.Privileged()
}

func ActorFrom(c *fiber.Ctx) Actor {
	userID, _ := c.Locals(userIDLocal).(string)
	roles, _ := c.Locals(userRolesLocal).([]string)
	return Actor{UserID: userID, Roles: roles}
}
