// handlers/store.go
package handlers

import (
	"realm-rivals/middleware"
	"realm-rivals/models"
	"realm-rivals/services"

	"github.com/gofiber/fiber/v2"
)

type StoreHandler struct {
	Store *services.StoreService
	Coins *services.CoinService
}

func SetupStoreRoutes(api fiber.Router, h *StoreHandler) {
	api.Get("/store/characters", h.Characters)
	api.Get("/store/owned", h.Owned)
	api.Post("/store/purchase", h.Purchase)
	api.Post("/store/select", h.Select)

	api.Post("/update-coins", h.UpdateCoins)
	api.Get("/coins/:userId", h.Balance)
	api.Get("/coins/:userId/history", h.History)
}

func (h *StoreHandler) Characters(c *fiber.Ctx) error {
	chars, err := h.Store.Characters(c.UserContext())
	if err != nil {
		return respondServiceError(c, "STORE", err)
	}
	return respondOK(c, fiber.StatusOK, "characters", chars)
}

func (h *StoreHandler) Owned(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Query("userId"))
	if !ok {
		return forbidden(c)
	}
	owned, err := h.Store.Owned(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, "STORE", err)
	}
	return respondOK(c, fiber.StatusOK, "owned characters", owned)
}

type purchaseRequest struct {
	UserID      string `json:"userId"`
	CharacterID string `json:"characterId" validate:"required"`
	Price       *int64 `json:"price" validate:"omitempty,min=0"`
}

func (h *StoreHandler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	res, err := h.Store.Purchase(c.UserContext(), userID, req.CharacterID, req.Price)
	if err != nil {
		return respondServiceError(c, "STORE", err)
	}
	return respondOK(c, fiber.StatusOK, "character purchased", res)
}

type selectRequest struct {
	UserID      string `json:"userId"`
	CharacterID string `json:"characterId" validate:"required"`
}

func (h *StoreHandler) Select(c *fiber.Ctx) error {
	var req selectRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	profile, err := h.Store.Select(c.UserContext(), userID, req.CharacterID)
	if err != nil {
		return respondServiceError(c, "STORE", err)
	}
	return respondOK(c, fiber.StatusOK, "character selected", profile)
}

type updateCoinsRequest struct {
	UserID    string `json:"userId" validate:"required"`
	Coins     int64  `json:"coins" validate:"required"`
	Reason    string `json:"reason" validate:"omitempty,max=32"`
	Reference string `json:"reference" validate:"omitempty,max=128"`
}

// UpdateCoins applies a signed delta. Balances are only moved by trusted callers.
func (h *StoreHandler) UpdateCoins(c *fiber.Ctx) error {
	if !middleware.ActorFrom(c).Privileged() {
		return respondError(c, fiber.StatusForbidden, "updating coins requires the admin or service role")
	}
	var req updateCoinsRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	reason := req.Reason
	if reason == "" {
		reason = models.CoinReasonGrant
	}
	entry, profile, err := h.Coins.Adjust(c.UserContext(), req.UserID, req.Coins, reason, req.Reference)
	if err != nil {
		return respondServiceError(c, "COINS", err)
	}
	return respondOK(c, fiber.StatusOK, "coins updated", fiber.Map{
		"userId":      req.UserID,
		"coins":       profile.Coins,
		"transaction": entry,
	})
}

func (h *StoreHandler) Balance(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Params("userId"))
	if !ok {
		return forbidden(c)
	}
	coins, err := h.Coins.Balance(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, "COINS", err)
	}
	return respondOK(c, fiber.StatusOK, "balance", fiber.Map{"userId": userID, "coins": coins})
}

func (h *StoreHandler) History(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Params("userId"))
	if !ok {
		return forbidden(c)
	}
	entries, err := h.Coins.History(c.UserContext(), userID, c.QueryInt("limit", 50))
	if err != nil {
		return respondServiceError(c, "COINS", err)
	}
	return respondOK(c, fiber.StatusOK, "history", entries)
}
