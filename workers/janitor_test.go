package workers

import (
	"context"
	"testing"
	"time"

	"realm-rivals/models"
)

func TestJanitorSweeps(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	lobby, _, err := svc.sessions.CreateLobby(ctx, "host", "trio")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.sessions.Join(ctx, lobby.ID, "afk", ""); err != nil {
		t.Fatal(err)
	}
	inv, err := svc.invitations.Send(ctx, "host", "friend", lobby.ID)
	if err != nil {
		t.Fatal(err)
	}

	old := time.Now().UTC().Add(-time.Hour)
	svc.db.Model(&models.SessionPlayer{}).Where("user_id = ?", "afk").Update("last_seen_at", old)
	svc.db.Model(&models.Invitation{}).Where("id = ?", inv.ID).Update("expires_at", old)

	j := NewJanitor(svc.players, svc.sessions, svc.invitations, JanitorConfig{})
	j.ReapStalePlayers(ctx)
	j.ExpireInvitations(ctx)

	if member, _ := svc.players.IsMember(ctx, lobby.ID, "afk"); member {
		t.Fatal("stale player not reaped")
	}
	var stored models.Invitation
	if err := svc.db.First(&stored, "id = ?", inv.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InvitationExpired {
		t.Fatalf("expected expired invitation, got %s", stored.Status)
	}

	svc.db.Model(&models.GameSession{}).Where("id = ?", lobby.ID).Update("last_activity_at", old.Add(-time.Hour))
	j.CloseIdleSessions(ctx)
	var session models.GameSession
	if err := svc.db.First(&session, "id = ?", lobby.ID).Error; err != nil {
		t.Fatal(err)
	}
	if session.Status != models.SessionStatusCompleted {
		t.Fatalf("expected idle session completed, got %s", session.Status)
	}
}

func TestJanitorSchedulesJobs(t *testing.T) {
	svc := newTestServices(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := func() string {
		lobby, _, err := svc.sessions.CreateLobby(ctx, "host", "duo")
		if err != nil {
			t.Fatal(err)
		}
		i, err := svc.invitations.Send(ctx, "host", "friend", lobby.ID)
		if err != nil {
			t.Fatal(err)
		}
		svc.db.Model(&models.Invitation{}).Where("id = ?", i.ID).Update("expires_at", time.Now().UTC().Add(-time.Second))
		return i.ID
	}()

	j := NewJanitor(svc.players, svc.sessions, svc.invitations, JanitorConfig{
		StaleEvery:  50 * time.Millisecond,
		InviteEvery: 50 * time.Millisecond,
		IdleEvery:   time.Hour,
	})
	if err := j.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer j.Stop()

	waitFor(t, func() bool {
		var stored models.Invitation
		if err := svc.db.First(&stored, "id = ?", inv).Error; err != nil {
			return false
		}
		return stored.Status == models.InvitationExpired
	})
}
