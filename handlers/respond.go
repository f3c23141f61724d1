// handlers/respond.go
package handlers

import (
	"errors"
	"log"

	"realm-rivals/middleware"
	"realm-rivals/services"

	"github.com/gofiber/fiber/v2"
)

func respondOK(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"data":    nil,
	})
}

// statusFor maps a service error to the HTTP status clients see.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrUnknownCharacter):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidMode),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrInvalidUsername),
		errors.Is(err, services.ErrZeroAmount),
		errors.Is(err, services.ErrSelfInvite):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrNotHost),
		errors.Is(err, services.ErrNotInSession):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, services.ErrSessionFull),
		errors.Is(err, services.ErrSessionClosed),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrAlreadyOwned),
		errors.Is(err, services.ErrNotOwned),
		errors.Is(err, services.ErrPriceMismatch),
		errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrInvitationClosed),
		errors.Is(err, services.ErrInvitationExpired),
		errors.Is(err, services.ErrDuplicateInvite):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// respondServiceError writes err with its mapped status. Unexpected errors are logged and
// replaced by a generic message so driver details never reach clients.
func respondServiceError(c *fiber.Ctx, tag string, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [%s] %s %s: %v", tag, c.Method(), c.Path(), err)
		return respondError(c, status, "internal server error")
	}
	return respondError(c, status, err.Error())
}

// targetUser resolves which user a request acts on: the requested id, or the caller when
// empty. Acting for someone else needs the admin or service role.
func targetUser(c *fiber.Ctx, requested string) (string, bool) {
	actor := middleware.ActorFrom(c)
	if requested == "" {
		requested = actor.UserID
	}
	if requested == "" || !actor.CanActFor(requested) {
		return "", false
	}
	return requested, true
}

func forbidden(c *fiber.Ctx) error {
	return respondError(c, fiber.StatusForbidden, "cannot act on behalf of another user")
}
