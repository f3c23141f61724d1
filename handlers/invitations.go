// handlers/invitations.go
package handlers

import (
	"errors"

	"realm-rivals/models"
	"realm-rivals/services"

	"github.com/gofiber/fiber/v2"
)

type InvitationHandler struct {
	Invitations *services.InvitationService
}

func SetupInvitationRoutes(api fiber.Router, h *InvitationHandler) {
	api.Post("/invitations", h.Send)
	api.Get("/invitations", h.ListIncoming)
	api.Get("/invitations/sent", h.ListSent)
	api.Post("/invitations/:id/respond", h.Respond)
	api.Post("/invitations/:id/cancel", h.Cancel)

	// Older clients poll this for their pending invites.
	api.Get("/direct-check-invites", h.DirectCheck)
}

type sendInvitationRequest struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId" validate:"required"`
	LobbyID     string `json:"lobbyId" validate:"required"`
}

func (h *InvitationHandler) Send(c *fiber.Ctx) error {
	var req sendInvitationRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	senderID, ok := targetUser(c, req.SenderID)
	if !ok {
		return forbidden(c)
	}
	inv, err := h.Invitations.Send(c.UserContext(), senderID, req.RecipientID, req.LobbyID)
	if err != nil {
		return respondServiceError(c, "INVITES", err)
	}
	return respondOK(c, fiber.StatusCreated, "invitation sent", inv)
}

var invitationStatuses = map[string]bool{
	models.InvitationPending:   true,
	models.InvitationAccepted:  true,
	models.InvitationDeclined:  true,
	models.InvitationCancelled: true,
	models.InvitationExpired:   true,
}

func (h *InvitationHandler) ListIncoming(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Query("userId"))
	if !ok {
		return forbidden(c)
	}
	status := c.Query("status")
	if status != "" && !invitationStatuses[status] {
		return respondError(c, fiber.StatusBadRequest, "unknown invitation status")
	}
	invites, err := h.Invitations.ListIncoming(c.UserContext(), userID, status)
	if err != nil {
		return respondServiceError(c, "INVITES", err)
	}
	return respondOK(c, fiber.StatusOK, "invitations", invites)
}

func (h *InvitationHandler) ListSent(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Query("userId"))
	if !ok {
		return forbidden(c)
	}
	invites, err := h.Invitations.ListSent(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, "INVITES", err)
	}
	return respondOK(c, fiber.StatusOK, "invitations", invites)
}

func (h *InvitationHandler) DirectCheck(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Query("userId"))
	if !ok {
		return forbidden(c)
	}
	invites, err := h.Invitations.ListIncoming(c.UserContext(), userID, models.InvitationPending)
	if err != nil {
		return respondServiceError(c, "INVITES", err)
	}
	return respondOK(c, fiber.StatusOK, "pending invitations", invites)
}

type respondInvitationRequest struct {
	UserID string `json:"userId"`
	Action string `json:"action" validate:"required,oneof=accept decline"`
}

func (h *InvitationHandler) Respond(c *fiber.Ctx) error {
	var req respondInvitationRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	res, err := h.Invitations.Respond(c.UserContext(), c.Params("id"), userID, req.Action == "accept")
	if errors.Is(err, services.ErrInvitationExpired) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
			"data":    res,
		})
	}
	if err != nil {
		return respondServiceError(c, "INVITES", err)
	}
	return respondOK(c, fiber.StatusOK, "invitation "+res.Invitation.Status, res)
}

type cancelInvitationRequest struct {
	UserID string `json:"userId"`
}

func (h *InvitationHandler) Cancel(c *fiber.Ctx) error {
	var req cancelInvitationRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return respondError(c, fiber.StatusBadRequest, err.Error())
		}
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	inv, err := h.Invitations.Cancel(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return respondServiceError(c, "INVITES", err)
	}
	return respondOK(c, fiber.StatusOK, "invitation cancelled", inv)
}
