// handlers/game.go
package handlers

import (
	"encoding/json"

	"realm-rivals/config"
	"realm-rivals/middleware"
	"realm-rivals/models"
	"realm-rivals/realtime"
	"realm-rivals/services"

	"github.com/gofiber/fiber/v2"
)

type GameHandler struct {
	Catalog     config.Catalog
	Matchmaking *services.MatchmakingService
	Sessions    *services.SessionService
	Players     *services.PlayerStateService
	Hub         *realtime.Hub
}

func SetupGameRoutes(api fiber.Router, h *GameHandler) {
	game := api.Group("/game")

	game.Get("/modes", h.ListModes)
	game.Post("/matchmaking", h.FindMatch)

	game.Post("/sessions", h.CreateLobby)
	game.Get("/sessions/:id", h.GetSession)
	game.Post("/sessions/:id/join", h.Join)
	game.Post("/sessions/:id/leave", h.Leave)
	game.Post("/sessions/:id/start", h.Start)
	game.Post("/sessions/:id/complete", h.Complete)
	game.Get("/sessions/:id/players", h.ListPlayers)
	game.Put("/sessions/:id/players/:userId/state", h.UpdateState)
	game.Post("/sessions/:id/players/:userId/heartbeat", h.Heartbeat)
}

// sessionView is the shape the web client reads after matchmaking and lobby calls.
type sessionView struct {
	SessionID   string                `json:"sessionId"`
	Mode        string                `json:"mode"`
	Status      string                `json:"status"`
	PlayerCount int                   `json:"playerCount"`
	MaxPlayers  int                   `json:"maxPlayers"`
	HostID      string                `json:"hostId"`
	IsPrivate   bool                  `json:"isPrivate"`
	Player      *models.SessionPlayer `json:"player,omitempty"`
}

func viewOf(s *models.GameSession, p *models.SessionPlayer) sessionView {
	return sessionView{
		SessionID:   s.ID,
		Mode:        s.Mode,
		Status:      s.Status,
		PlayerCount: s.PlayerCount,
		MaxPlayers:  s.MaxPlayers,
		HostID:      s.HostID,
		IsPrivate:   s.IsPrivate,
		Player:      p,
	}
}

func (h *GameHandler) ListModes(c *fiber.Ctx) error {
	return respondOK(c, fiber.StatusOK, "modes", h.Catalog.Modes)
}

type matchmakingRequest struct {
	UserID string `json:"userId"`
	Mode   string `json:"mode" validate:"required"`
}

func (h *GameHandler) FindMatch(c *fiber.Ctx) error {
	var req matchmakingRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}

	res, err := h.Matchmaking.FindMatch(c.UserContext(), userID, req.Mode)
	if err != nil {
		return respondServiceError(c, "MATCHMAKING", err)
	}

	view := struct {
		sessionView
		Created  bool `json:"created"`
		Rejoined bool `json:"rejoined"`
	}{viewOf(res.Session, res.Player), res.Created, res.Rejoined}

	status := fiber.StatusOK
	message := "joined session"
	switch {
	case res.Created:
		status = fiber.StatusCreated
		message = "created session"
	case res.Rejoined:
		message = "already in session"
	}
	return respondOK(c, status, message, view)
}

type lobbyRequest struct {
	UserID string `json:"userId"`
	Mode   string `json:"mode" validate:"required"`
}

func (h *GameHandler) CreateLobby(c *fiber.Ctx) error {
	var req lobbyRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	session, player, err := h.Sessions.CreateLobby(c.UserContext(), userID, req.Mode)
	if err != nil {
		return respondServiceError(c, "SESSIONS", err)
	}
	return respondOK(c, fiber.StatusCreated, "lobby created", viewOf(session, player))
}

func (h *GameHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.Sessions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, "SESSIONS", err)
	}
	return respondOK(c, fiber.StatusOK, "session", viewOf(session, nil))
}

type sessionActionRequest struct {
	UserID      string `json:"userId"`
	CharacterID string `json:"characterId"`
}

// parseAction reads an optional body; an empty body means the caller acts for itself.
func parseAction(c *fiber.Ctx) (sessionActionRequest, error) {
	var req sessionActionRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	return req, bindJSON(c, &req)
}

func (h *GameHandler) Join(c *fiber.Ctx) error {
	req, err := parseAction(c)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	session, player, err := h.Sessions.Join(c.UserContext(), c.Params("id"), userID, req.CharacterID)
	if err != nil {
		return respondServiceError(c, "SESSIONS", err)
	}
	return respondOK(c, fiber.StatusOK, "joined session", viewOf(session, player))
}

func (h *GameHandler) Leave(c *fiber.Ctx) error {
	req, err := parseAction(c)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	session, err := h.Sessions.Leave(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return respondServiceError(c, "SESSIONS", err)
	}
	return respondOK(c, fiber.StatusOK, "left session", viewOf(session, nil))
}

func (h *GameHandler) Start(c *fiber.Ctx) error {
	req, err := parseAction(c)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	session, err := h.Sessions.Start(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return respondServiceError(c, "SESSIONS", err)
	}
	return respondOK(c, fiber.StatusOK, "session started", viewOf(session, nil))
}

func (h *GameHandler) Complete(c *fiber.Ctx) error {
	req, err := parseAction(c)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, ok := targetUser(c, req.UserID)
	if !ok {
		return forbidden(c)
	}
	// Admins and services close sessions as the system.
	if middleware.ActorFrom(c).Privileged() && req.UserID == "" {
		userID = ""
	}
	session, err := h.Sessions.Complete(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return respondServiceError(c, "SESSIONS", err)
	}
	return respondOK(c, fiber.StatusOK, "session completed", viewOf(session, nil))
}

func (h *GameHandler) ListPlayers(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	players, err := h.Sessions.ListPlayers(c.UserContext(), sessionID)
	if err != nil {
		return respondServiceError(c, "SESSIONS", err)
	}
	return respondOK(c, fiber.StatusOK, "players", fiber.Map{
		"players": players,
		"seq":     h.Hub.Seq(sessionID),
	})
}

func (h *GameHandler) UpdateState(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Params("userId"))
	if !ok {
		return forbidden(c)
	}
	var upd services.StateUpdate
	if err := json.Unmarshal(c.Body(), &upd); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	player, err := h.Players.UpdateState(c.UserContext(), c.Params("id"), userID, upd)
	if err != nil {
		return respondServiceError(c, "PLAYERS", err)
	}
	return respondOK(c, fiber.StatusOK, "state updated", player)
}

func (h *GameHandler) Heartbeat(c *fiber.Ctx) error {
	userID, ok := targetUser(c, c.Params("userId"))
	if !ok {
		return forbidden(c)
	}
	if err := h.Players.Touch(c.UserContext(), c.Params("id"), userID); err != nil {
		return respondServiceError(c, "PLAYERS", err)
	}
	return respondOK(c, fiber.StatusOK, "ok", nil)
}
