package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"realm-rivals/config"
	"realm-rivals/database"
	"realm-rivals/models"
	"realm-rivals/realtime"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(sessionID string, evt realtime.Event) realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	evt.SessionID = sessionID
	p.events = append(p.events, evt)
	return evt
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingArchiver struct {
	mu       sync.Mutex
	sessions []string
	players  map[string]int
}

func (a *recordingArchiver) ArchiveSession(_ context.Context, s *models.GameSession, players []models.SessionPlayer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.players == nil {
		a.players = make(map[string]int)
	}
	a.sessions = append(a.sessions, s.ID)
	a.players[s.ID] = len(players)
	return nil
}

type testEnv struct {
	db          *gorm.DB
	catalog     config.Catalog
	pub         *recordingPublisher
	archiver    *recordingArchiver
	sessions    *SessionService
	matchmaking *MatchmakingService
	players     *PlayerStateService
	invitations *InvitationService
	profiles    *ProfileService
	coins       *CoinService
	store       *StoreService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	catalog := config.DefaultCatalog()
	pub := &recordingPublisher{}
	arch := &recordingArchiver{}
	sessions := NewSessionService(db, catalog, pub, arch)
	env := &testEnv{
		db:          db,
		catalog:     catalog,
		pub:         pub,
		archiver:    arch,
		sessions:    sessions,
		matchmaking: NewMatchmakingService(sessions),
		players:     NewPlayerStateService(sessions, 12),
		invitations: NewInvitationService(sessions, 0),
		profiles:    NewProfileService(db, catalog),
		coins:       NewCoinService(db),
		store:       NewStoreService(db, catalog),
	}
	if err := env.store.SyncCatalog(context.Background()); err != nil {
		t.Fatalf("sync catalog: %v", err)
	}
	return env
}

// profileWithCoins creates a profile and sets its balance directly.
func (e *testEnv) profileWithCoins(t *testing.T, userID string, coins int64) *models.Profile {
	t.Helper()
	p, _, err := e.profiles.Ensure(context.Background(), userID, "")
	if err != nil {
		t.Fatalf("ensure profile %s: %v", userID, err)
	}
	if err := e.db.Model(&models.Profile{}).Where("user_id = ?", userID).Update("coins", coins).Error; err != nil {
		t.Fatalf("set coins: %v", err)
	}
	p.Coins = coins
	return p
}

func (e *testEnv) session(t *testing.T, id string) models.GameSession {
	t.Helper()
	var s models.GameSession
	if err := e.db.First(&s, "id = ?", id).Error; err != nil {
		t.Fatalf("load session %s: %v", id, err)
	}
	return s
}

func (e *testEnv) countPlayers(t *testing.T, sessionID string) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.SessionPlayer{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		t.Fatalf("count players: %v", err)
	}
	return n
}
