package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{SessionStatusWaiting, SessionStatusFull, true},
		{SessionStatusFull, SessionStatusWaiting, true},
		{SessionStatusWaiting, SessionStatusActive, true},
		{SessionStatusActive, SessionStatusCompleted, true},
		{SessionStatusActive, SessionStatusWaiting, false},
		{SessionStatusCompleted, SessionStatusWaiting, false},
		{SessionStatusCompleted, SessionStatusActive, false},
		{"bogus", SessionStatusActive, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestSessionOpen(t *testing.T) {
	s := GameSession{Status: SessionStatusWaiting, PlayerCount: 1, MaxPlayers: 2}
	if !s.Open() {
		t.Fatalf("expected open session")
	}
	s.PlayerCount = 2
	if s.Open() {
		t.Fatalf("session at capacity must not be open")
	}
	s.PlayerCount = 0
	s.Status = SessionStatusActive
	if s.Open() {
		t.Fatalf("active session must not be open")
	}
}
