package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"realm-rivals/models"
	"realm-rivals/realtime"
)

func TestJoinTwiceCreatesOneRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "trio")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, _, err := env.sessions.Join(ctx, lobby.ID, "guest", ""); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	if n := env.countPlayers(t, lobby.ID); n != 2 {
		t.Fatalf("expected host + guest rows, got %d", n)
	}
	if s := env.session(t, lobby.ID); s.PlayerCount != 2 {
		t.Fatalf("expected player_count 2, got %d", s.PlayerCount)
	}
}

func TestJoinedRowMatchesStoredRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	_, joined, err := env.sessions.Join(ctx, lobby.ID, "guest", "")
	if err != nil {
		t.Fatal(err)
	}
	if joined.JoinedAt.Nanosecond()%1000 != 0 {
		t.Fatalf("joined_at carries sub-microsecond digits: %s", joined.JoinedAt)
	}
	players, err := env.sessions.ListPlayers(ctx, lobby.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range players {
		if p.UserID == "guest" && !p.JoinedAt.Equal(joined.JoinedAt) {
			t.Fatalf("published joined_at %s differs from stored %s", joined.JoinedAt, p.JoinedAt)
		}
	}
}

func TestJoinFullSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "second", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "third", ""); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("expected ErrSessionFull, got %v", err)
	}
}

func TestJoinRequiresOwnedCharacter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.profileWithCoins(t, "guest", 0)

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "guest", "sun-warden"); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
	_, player, err := env.sessions.Join(ctx, lobby.ID, "guest", "")
	if err != nil {
		t.Fatal(err)
	}
	if player.CharacterID != "wanderer" {
		t.Fatalf("expected selected starter character, got %q", player.CharacterID)
	}
}

func TestLeaveReopensFullSessionAndMovesHost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "guest", ""); err != nil {
		t.Fatal(err)
	}
	if s := env.session(t, lobby.ID); s.Status != models.SessionStatusFull {
		t.Fatalf("expected full, got %s", s.Status)
	}

	s, err := env.sessions.Leave(ctx, lobby.ID, "host")
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != models.SessionStatusWaiting || s.PlayerCount != 1 || s.HostID != "guest" {
		t.Fatalf("unexpected session after leave: %+v", s)
	}
	stored := env.session(t, lobby.ID)
	if stored.HostID != "guest" || stored.PlayerCount != 1 {
		t.Fatalf("leave not persisted: %+v", stored)
	}
}

func TestLastLeaveCompletesAndArchives(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "solo")
	if err != nil {
		t.Fatal(err)
	}
	s, err := env.sessions.Leave(ctx, lobby.ID, "host")
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != models.SessionStatusCompleted || s.CompletedAt == nil {
		t.Fatalf("expected completed session, got %+v", s)
	}
	if len(env.archiver.sessions) != 1 || env.archiver.sessions[0] != lobby.ID {
		t.Fatalf("expected the session to be archived, got %v", env.archiver.sessions)
	}
	if _, err := env.sessions.Leave(ctx, lobby.ID, "host"); !errors.Is(err, ErrNotInSession) {
		t.Fatalf("expected ErrNotInSession on second leave, got %v", err)
	}
}

func TestStartAndComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "trio")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "guest", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.sessions.Start(ctx, lobby.ID, "guest"); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	s, err := env.sessions.Start(ctx, lobby.ID, "host")
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != models.SessionStatusActive || s.StartedAt == nil {
		t.Fatalf("expected active session, got %+v", s)
	}
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "late", ""); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed joining an active session, got %v", err)
	}

	if _, err := env.sessions.Complete(ctx, lobby.ID, "outsider"); !errors.Is(err, ErrNotInSession) {
		t.Fatalf("expected ErrNotInSession, got %v", err)
	}
	s, err = env.sessions.Complete(ctx, lobby.ID, "guest")
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != models.SessionStatusCompleted {
		t.Fatalf("expected completed, got %s", s.Status)
	}
	if env.archiver.players[lobby.ID] != 2 {
		t.Fatalf("expected archive with 2 players, got %d", env.archiver.players[lobby.ID])
	}
	if _, err := env.sessions.Start(ctx, lobby.ID, "host"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition restarting a completed session, got %v", err)
	}
}

func TestSessionEventsPublishedAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "guest", ""); err != nil {
		t.Fatal(err)
	}
	got := env.pub.types()
	want := []string{realtime.EventPlayerJoined, realtime.EventPlayerJoined, realtime.EventSessionStatus}
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}

	// A failed join publishes nothing.
	if _, _, err := env.sessions.Join(ctx, lobby.ID, "third", ""); err == nil {
		t.Fatal("expected join to fail")
	}
	if n := len(env.pub.types()); n != len(want) {
		t.Fatalf("failed join published events: %v", env.pub.types())
	}
}

func TestCompleteIdle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	idle, _, err := env.sessions.CreateLobby(ctx, "idle-host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	fresh, _, err := env.sessions.CreateLobby(ctx, "fresh-host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().UTC().Add(-3 * time.Hour)
	if err := env.db.Model(&models.GameSession{}).Where("id = ?", idle.ID).Update("last_activity_at", old).Error; err != nil {
		t.Fatal(err)
	}

	n, err := env.sessions.CompleteIdle(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 idle session closed, got %d", n)
	}
	if s := env.session(t, idle.ID); s.Status != models.SessionStatusCompleted {
		t.Fatalf("idle session not completed: %s", s.Status)
	}
	if s := env.session(t, fresh.ID); s.Status != models.SessionStatusWaiting {
		t.Fatalf("fresh session changed: %s", s.Status)
	}
}
