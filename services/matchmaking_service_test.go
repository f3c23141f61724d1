package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"realm-rivals/models"
)

func TestFindMatchMaxPlayersPerMode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		mode string
		max  int
	}{
		{"solo", 1},
		{"duo", 2},
		{"trio", 3},
		{"duel", 2},
	}
	for _, tc := range cases {
		res, err := env.matchmaking.FindMatch(ctx, "user-"+tc.mode, tc.mode)
		if err != nil {
			t.Fatalf("%s: %v", tc.mode, err)
		}
		if res.Session.MaxPlayers != tc.max {
			t.Fatalf("%s: expected maxPlayers %d, got %d", tc.mode, tc.max, res.Session.MaxPlayers)
		}
	}
}

func TestFindMatchDuelCreatesWaitingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.matchmaking.FindMatch(ctx, "u1", "duel")
	if err != nil {
		t.Fatalf("find match: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected a new session")
	}
	s := env.session(t, res.Session.ID)
	if s.PlayerCount != 1 || s.Status != models.SessionStatusWaiting {
		t.Fatalf("expected player_count=1 status=waiting, got %d %s", s.PlayerCount, s.Status)
	}
	if s.HostID != "u1" {
		t.Fatalf("expected u1 to host, got %q", s.HostID)
	}
}

func TestFindMatchFillsThenOpensNewSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.matchmaking.FindMatch(ctx, "u1", "duel")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.matchmaking.FindMatch(ctx, "u2", "duel")
	if err != nil {
		t.Fatal(err)
	}
	if second.Session.ID != first.Session.ID || second.Created {
		t.Fatalf("expected u2 to join u1's session")
	}
	s := env.session(t, first.Session.ID)
	if s.PlayerCount != 2 || s.Status != models.SessionStatusFull {
		t.Fatalf("expected full session with 2 players, got %d %s", s.PlayerCount, s.Status)
	}
	if second.Player.Team == first.Player.Team {
		t.Fatalf("duel players should be on opposite teams")
	}

	third, err := env.matchmaking.FindMatch(ctx, "u3", "duel")
	if err != nil {
		t.Fatal(err)
	}
	if third.Session.ID == first.Session.ID || !third.Created {
		t.Fatalf("expected a fresh session once the first is full")
	}
}

func TestFindMatchIsIdempotentPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.matchmaking.FindMatch(ctx, "u1", "trio")
	if err != nil {
		t.Fatal(err)
	}
	again, err := env.matchmaking.FindMatch(ctx, "u1", "trio")
	if err != nil {
		t.Fatal(err)
	}
	if !again.Rejoined || again.Session.ID != first.Session.ID {
		t.Fatalf("expected the same session back, got %+v", again)
	}
	if n := env.countPlayers(t, first.Session.ID); n != 1 {
		t.Fatalf("expected 1 player row, got %d", n)
	}
	if s := env.session(t, first.Session.ID); s.PlayerCount != 1 {
		t.Fatalf("expected player_count 1, got %d", s.PlayerCount)
	}
}

func TestFindMatchRejectsUnknownMode(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.matchmaking.FindMatch(context.Background(), "u1", "battle-royale"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestFindMatchSkipsPrivateLobbies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lobby, _, err := env.sessions.CreateLobby(ctx, "host", "duo")
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.matchmaking.FindMatch(ctx, "stranger", "duo")
	if err != nil {
		t.Fatal(err)
	}
	if res.Session.ID == lobby.ID {
		t.Fatalf("matchmaking must not place strangers into private lobbies")
	}
}

func TestFindMatchConcurrentNeverOverfills(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const players = 12
	var wg sync.WaitGroup
	errs := make(chan error, players)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := env.matchmaking.FindMatch(ctx, fmt.Sprintf("racer-%d", i), "trio"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("find match: %v", err)
	}

	var sessions []models.GameSession
	if err := env.db.Where("mode = ?", "trio").Find(&sessions).Error; err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, s := range sessions {
		rows := env.countPlayers(t, s.ID)
		if s.PlayerCount > s.MaxPlayers || int(rows) != s.PlayerCount {
			t.Fatalf("session %s: count=%d rows=%d max=%d", s.ID, s.PlayerCount, rows, s.MaxPlayers)
		}
		total += s.PlayerCount
	}
	if total != players {
		t.Fatalf("expected %d seated players, got %d", players, total)
	}
}
