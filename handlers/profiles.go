// handlers/profiles.go
package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"realm-rivals/services"
	"realm-rivals/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxAvatarBytes = 2 << 20

var avatarExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true}

type ProfileHandler struct {
	Profiles *services.ProfileService
	Store    utils.ObjectWriter
}

func SetupProfileRoutes(api fiber.Router, h *ProfileHandler) {
	api.Post("/profile", h.Ensure)
	api.Get("/profile/:userId", h.Get)
	api.Patch("/profile/:userId", h.Update)
	api.Post("/profile/:userId/avatar", h.UploadAvatar)
	api.Get("/profiles/search", h.Search)
}

type ensureProfileRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username" validate:"omitempty,min=3,max=24"`
}

func (h *ProfileHandler) Ensure(c *fiber.Ctx) error {
	var req ensureProfileRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return respondError(c, fiber.StatusBadRequest, err.Error())
		}
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	profile, created, err := h.Profiles.Ensure(c.UserContext(), userID, req.Username)
	if err != nil {
		return respondServiceError(c, "PROFILES", err)
	}
	if created {
		return respondOK(c, fiber.StatusCreated, "profile created", profile)
	}
	return respondOK(c, fiber.StatusOK, "profile", profile)
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	profile, err := h.Profiles.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		return respondServiceError(c, "PROFILES", err)
	}
	return respondOK(c, fiber.StatusOK, "profile", profile)
}

type updateProfileRequest struct {
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
}

func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Params("userId"))
	if !ok {
		return forbidden(c)
	}
	var req updateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	profile, err := h.Profiles.Update(c.UserContext(), userID, services.ProfileUpdate{
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		return respondServiceError(c, "PROFILES", err)
	}
	return respondOK(c, fiber.StatusOK, "profile updated", profile)
}

func (h *ProfileHandler) UploadAvatar(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Params("userId"))
	if !ok {
		return forbidden(c)
	}
	if h.Store == nil {
		return respondError(c, fiber.StatusServiceUnavailable, "avatar uploads are not configured")
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "avatar file is required")
	}
	if fileHeader.Size > maxAvatarBytes {
		return respondError(c, fiber.StatusBadRequest, "avatar must be at most 2MB")
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !avatarExtensions[ext] {
		return respondError(c, fiber.StatusBadRequest, "avatar must be a png, jpg, webp or gif image")
	}

	if _, err := h.Profiles.Get(c.UserContext(), userID); err != nil {
		return respondServiceError(c, "PROFILES", err)
	}

	key := fmt.Sprintf("avatars/%s/%s%s", userID, uuid.NewString(), ext)
	url, err := utils.UploadFile(c.UserContext(), h.Store, fileHeader, key)
	if err != nil {
		return respondServiceError(c, "PROFILES", err)
	}
	profile, err := h.Profiles.Update(c.UserContext(), userID, services.ProfileUpdate{AvatarURL: &url})
	if err != nil {
		return respondServiceError(c, "PROFILES", err)
	}
	return respondOK(c, fiber.StatusOK, "avatar uploaded", profile)
}

func (h *ProfileHandler) Search(c *fiber.Ctx) error {
	profiles, err := h.Profiles.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 20))
	if err != nil {
		return respondServiceError(c, "PROFILES", err)
	}
	return respondOK(c, fiber.StatusOK, "profiles", profiles)
}
