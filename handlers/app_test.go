package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"realm-rivals/config"
	"realm-rivals/database"
	"realm-rivals/realtime"
	"realm-rivals/services"
	"realm-rivals/utils"

	"github.com/gofiber/fiber/v2"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T, token string) *fiber.App {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	catalog := config.DefaultCatalog()
	hub := realtime.NewHub(16)
	store := utils.NewLocalStore(t.TempDir(), "/uploads")
	sessions := services.NewSessionService(db, catalog, hub, services.NewZstdArchiver(store))
	storeService := services.NewStoreService(db, catalog)
	if err := storeService.SyncCatalog(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.ServiceToken = token
	return NewApp(cfg, Handlers{
		Game: &GameHandler{
			Catalog:     catalog,
			Matchmaking: services.NewMatchmakingService(sessions),
			Sessions:    sessions,
			Players:     services.NewPlayerStateService(sessions, cfg.MaxMoveSpeed),
			Hub:         hub,
		},
		Invitations: &InvitationHandler{Invitations: services.NewInvitationService(sessions, 0)},
		Profiles:    &ProfileHandler{Profiles: services.NewProfileService(db, catalog), Store: store},
		Store:       &StoreHandler{Store: storeService, Coins: services.NewCoinService(db)},
	}, true)
}

type call struct {
	method string
	path   string
	body   any
	user   string
	roles  string
	token  string
}

func do(t *testing.T, app *fiber.App, c call) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, rdr)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode envelope: %v", c.method, c.path, err)
	}
	return resp.StatusCode, env
}

func TestMatchmakingDuel(t *testing.T) {
	app := newTestApp(t, "")

	status, env := do(t, app, call{method: http.MethodPost, path: "/api/game/matchmaking", user: "u1",
		body: map[string]string{"userId": "u1", "mode": "duel"}})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("expected 201, got %d %s", status, env.Message)
	}
	var view struct {
		SessionID   string `json:"sessionId"`
		Status      string `json:"status"`
		PlayerCount int    `json:"playerCount"`
		MaxPlayers  int    `json:"maxPlayers"`
		Created     bool   `json:"created"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.PlayerCount != 1 || view.MaxPlayers != 2 || view.Status != "waiting" || !view.Created {
		t.Fatalf("unexpected session view: %+v", view)
	}

	status, env = do(t, app, call{method: http.MethodPost, path: "/api/game/matchmaking", user: "u2",
		body: map[string]string{"mode": "duel"}})
	if status != http.StatusOK {
		t.Fatalf("expected 200 joining, got %d %s", status, env.Message)
	}
	var second struct {
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
	}
	_ = json.Unmarshal(env.Data, &second)
	if second.SessionID != view.SessionID || second.Status != "full" {
		t.Fatalf("expected u2 to fill %s, got %+v", view.SessionID, second)
	}

	status, env = do(t, app, call{method: http.MethodGet, path: "/api/game/sessions/" + view.SessionID + "/players", user: "u1"})
	if status != http.StatusOK {
		t.Fatalf("list players: %d %s", status, env.Message)
	}
	var roster struct {
		Players []json.RawMessage `json:"players"`
		Seq     uint64            `json:"seq"`
	}
	_ = json.Unmarshal(env.Data, &roster)
	if len(roster.Players) != 2 || roster.Seq == 0 {
		t.Fatalf("unexpected roster: %d players seq %d", len(roster.Players), roster.Seq)
	}
}

func TestMatchmakingValidation(t *testing.T) {
	app := newTestApp(t, "")

	status, _ := do(t, app, call{method: http.MethodPost, path: "/api/game/matchmaking", user: "u1",
		body: map[string]string{"mode": "chaos"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown mode, got %d", status)
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/game/matchmaking", user: "u1",
		body: map[string]string{}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing mode, got %d", status)
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/game/matchmaking", user: "u1",
		body: map[string]string{"userId": "u2", "mode": "duo"}})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 matching on behalf of someone else, got %d", status)
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/game/matchmaking",
		body: map[string]string{"mode": "duo"}})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-ID, got %d", status)
	}
}

func TestUpdateCoins(t *testing.T) {
	app := newTestApp(t, "")

	status, env := do(t, app, call{method: http.MethodPost, path: "/api/profile", user: "u1",
		body: map[string]string{"username": "coinholder"}})
	if status != http.StatusCreated {
		t.Fatalf("create profile: %d %s", status, env.Message)
	}

	status, _ = do(t, app, call{method: http.MethodPost, path: "/update-coins", user: "u1",
		body: map[string]any{"userId": "u1", "coins": 500}})
	if status != http.StatusNotFound {
		t.Fatalf("update-coins lives under /api, expected 404 at the root, got %d", status)
	}

	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/update-coins", user: "u1",
		body: map[string]any{"userId": "u1", "coins": 500}})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for a player crediting themselves, got %d", status)
	}

	status, env = do(t, app, call{method: http.MethodPost, path: "/api/update-coins", user: "billing", roles: "service",
		body: map[string]any{"userId": "u1", "coins": 500}})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", status, env.Message)
	}
	var res struct {
		Coins int64 `json:"coins"`
	}
	_ = json.Unmarshal(env.Data, &res)
	if res.Coins != 1500 {
		t.Fatalf("expected 1000 + 500 = 1500, got %d", res.Coins)
	}

	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/update-coins", user: "billing", roles: "service",
		body: map[string]any{"userId": "u1", "coins": 0}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a zero delta, got %d", status)
	}

	status, env = do(t, app, call{method: http.MethodGet, path: "/api/coins/u1", user: "u1"})
	if status != http.StatusOK {
		t.Fatalf("balance: %d %s", status, env.Message)
	}
	_ = json.Unmarshal(env.Data, &res)
	if res.Coins != 1500 {
		t.Fatalf("expected stored balance 1500, got %d", res.Coins)
	}
	if status, _ := do(t, app, call{method: http.MethodGet, path: "/api/coins/u1", user: "u2"}); status != http.StatusForbidden {
		t.Fatalf("expected 403 reading another user's balance, got %d", status)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	app := newTestApp(t, "")

	if status, env := do(t, app, call{method: http.MethodPost, path: "/api/profile", user: "u1"}); status != http.StatusCreated {
		t.Fatalf("create profile: %d %s", status, env.Message)
	}
	status, env := do(t, app, call{method: http.MethodPost, path: "/api/store/purchase", user: "u1",
		body: map[string]any{"characterId": "sun-warden"}})
	if status != http.StatusPaymentRequired || env.Success {
		t.Fatalf("expected 402, got %d %s", status, env.Message)
	}

	status, env = do(t, app, call{method: http.MethodPost, path: "/api/store/purchase", user: "u1",
		body: map[string]any{"characterId": "ember-mage", "price": 500}})
	if status != http.StatusOK {
		t.Fatalf("expected purchase to succeed, got %d %s", status, env.Message)
	}
	var res struct {
		Coins int64 `json:"coins"`
	}
	_ = json.Unmarshal(env.Data, &res)
	if res.Coins != 500 {
		t.Fatalf("expected 500 coins left, got %d", res.Coins)
	}

	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/store/purchase", user: "u1",
		body: map[string]any{"characterId": "ember-mage"}})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 buying twice, got %d", status)
	}
}

func TestInvitationFlow(t *testing.T) {
	app := newTestApp(t, "")

	status, env := do(t, app, call{method: http.MethodPost, path: "/api/game/sessions", user: "host",
		body: map[string]string{"mode": "trio"}})
	if status != http.StatusCreated {
		t.Fatalf("create lobby: %d %s", status, env.Message)
	}
	var lobby struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(env.Data, &lobby)

	status, env = do(t, app, call{method: http.MethodPost, path: "/api/invitations", user: "host",
		body: map[string]string{"recipientId": "friend", "lobbyId": lobby.SessionID}})
	if status != http.StatusCreated {
		t.Fatalf("send invitation: %d %s", status, env.Message)
	}
	var inv struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(env.Data, &inv)

	status, _ = do(t, app, call{method: http.MethodPost, path: "/api/invitations/" + inv.ID + "/respond", user: "friend",
		body: map[string]string{"action": "maybe"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown action, got %d", status)
	}
	status, env = do(t, app, call{method: http.MethodPost, path: "/api/invitations/" + inv.ID + "/respond", user: "friend",
		body: map[string]string{"action": "accept"}})
	if status != http.StatusOK {
		t.Fatalf("accept: %d %s", status, env.Message)
	}

	status, env = do(t, app, call{method: http.MethodGet, path: "/api/game/sessions/" + lobby.SessionID, user: "friend"})
	if status != http.StatusOK {
		t.Fatalf("get session: %d %s", status, env.Message)
	}
	var view struct {
		PlayerCount int `json:"playerCount"`
	}
	_ = json.Unmarshal(env.Data, &view)
	if view.PlayerCount != 2 {
		t.Fatalf("expected 2 players after accepting, got %d", view.PlayerCount)
	}
}

func TestGatewayToken(t *testing.T) {
	app := newTestApp(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should bypass the gateway check, got %d", resp.StatusCode)
	}

	if status, _ := do(t, app, call{method: http.MethodGet, path: "/api/game/modes", user: "u1"}); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", status)
	}
	if status, _ := do(t, app, call{method: http.MethodGet, path: "/api/game/modes", user: "u1", token: "wrong"}); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong token, got %d", status)
	}
	status, env := do(t, app, call{method: http.MethodGet, path: "/api/game/modes", user: "u1", token: "secret"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 with the token, got %d %s", status, env.Message)
	}
	var modes []config.Mode
	if err := json.Unmarshal(env.Data, &modes); err != nil || len(modes) != 4 {
		t.Fatalf("expected 4 modes, got %v (%v)", modes, err)
	}
}

func TestStreamRequiresMembership(t *testing.T) {
	app := newTestApp(t, "")

	status, env := do(t, app, call{method: http.MethodPost, path: "/api/game/sessions", user: "host",
		body: map[string]string{"mode": "duo"}})
	if status != http.StatusCreated {
		t.Fatalf("create lobby: %d %s", status, env.Message)
	}
	var lobby struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(env.Data, &lobby)

	if status, _ := do(t, app, call{method: http.MethodGet, path: "/api/game/sessions/" + lobby.SessionID + "/stream"}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 without a user, got %d", status)
	}
	if status, _ := do(t, app, call{method: http.MethodGet, path: "/api/game/sessions/" + lobby.SessionID + "/stream?user_id=stranger"}); status != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-member, got %d", status)
	}
}
