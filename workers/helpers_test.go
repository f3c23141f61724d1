package workers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"realm-rivals/config"
	"realm-rivals/database"
	"realm-rivals/services"

	"gorm.io/gorm"
)

type testServices struct {
	db          *gorm.DB
	sessions    *services.SessionService
	players     *services.PlayerStateService
	invitations *services.InvitationService
	profiles    *services.ProfileService
	coins       *services.CoinService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    fmt.Sprintf("file:workers_%s?mode=memory&cache=shared", name),
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
	if err := services.NewStoreService(db, catalog).SyncCatalog(context.Background()); err != nil {
		t.Fatal(err)
	}
	sessions := services.NewSessionService(db, catalog, nil, nil)
	return &testServices{
		db:          db,
		sessions:    sessions,
		players:     services.NewPlayerStateService(sessions, 12),
		invitations: services.NewInvitationService(sessions, time.Minute),
		profiles:    services.NewProfileService(db, catalog),
		coins:       services.NewCoinService(db),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
