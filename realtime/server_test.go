package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeBackend struct {
	mu      sync.Mutex
	members map[string]bool
	states  []json.RawMessage
	touches int
	reject  error

	onSnapshot func()
}

func (b *fakeBackend) IsMember(_ context.Context, _, userID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.members[userID], nil
}

func (b *fakeBackend) Snapshot(_ context.Context, _ string) (any, error) {
	b.mu.Lock()
	hook := b.onSnapshot
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return []string{"u1"}, nil
}

func (b *fakeBackend) ApplyState(_ context.Context, _, _ string, raw json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reject != nil {
		return b.reject
	}
	b.states = append(b.states, raw)
	return nil
}

func (b *fakeBackend) Touch(_ context.Context, _, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.touches++
	return nil
}

func newTestServer(t *testing.T, backend *fakeBackend, token string) (*Hub, string) {
	t.Helper()
	hub := NewHub(16)
	srv := httptest.NewServer(NewServer(hub, backend, token).Handler())
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return evt
}

func TestServerSnapshotThenEvents(t *testing.T) {
	backend := &fakeBackend{members: map[string]bool{"u1": true}}
	hub, base := newTestServer(t, backend, "secret")

	conn, _, err := websocket.DefaultDialer.Dial(base+"/realtime/sessions/s1?user_id=u1&token=secret", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	snap := readEvent(t, conn)
	if snap.Type != EventSnapshot || snap.SessionID != "s1" {
		t.Fatalf("expected snapshot first, got %+v", snap)
	}

	hub.Publish("s1", Event{Type: EventPlayerJoined, UserID: "u2"})
	evt := readEvent(t, conn)
	if evt.Type != EventPlayerJoined || evt.Seq != snap.Seq+1 {
		t.Fatalf("expected player_joined with seq %d, got %+v", snap.Seq+1, evt)
	}

	if err := conn.WriteJSON(ClientFrame{Type: FramePing}); err != nil {
		t.Fatal(err)
	}
	if pong := readEvent(t, conn); pong.Type != FramePong {
		t.Fatalf("expected pong, got %+v", pong)
	}

	if err := conn.WriteJSON(ClientFrame{Type: FrameState, Payload: json.RawMessage(`{"isMoving":true}`)}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(ClientFrame{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	if e := readEvent(t, conn); e.Type != EventError {
		t.Fatalf("expected error frame for unknown type, got %+v", e)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.states) != 1 || backend.touches != 1 {
		t.Fatalf("expected 1 state and 1 touch, got %d and %d", len(backend.states), backend.touches)
	}
}

func TestServerSnapshotPrecedesBufferedEvents(t *testing.T) {
	backend := &fakeBackend{members: map[string]bool{"u1": true}}
	hub, base := newTestServer(t, backend, "")
	// Events published while the snapshot is read are already queued for the subscriber.
	backend.mu.Lock()
	backend.onSnapshot = func() {
		for i := 0; i < 3; i++ {
			hub.Publish("s1", Event{Type: EventPlayerState, UserID: "u2", Version: int64(i + 1)})
		}
	}
	backend.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(base+"/realtime/sessions/s1?user_id=u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	snap := readEvent(t, conn)
	if snap.Type != EventSnapshot {
		t.Fatalf("expected snapshot first, got %+v", snap)
	}
	for i := 1; i <= 3; i++ {
		evt := readEvent(t, conn)
		if evt.Type != EventPlayerState || evt.Seq != snap.Seq+uint64(i) {
			t.Fatalf("event %d: expected player_state seq %d, got %+v", i, snap.Seq+uint64(i), evt)
		}
	}
}

func TestServerReportsRejectedState(t *testing.T) {
	backend := &fakeBackend{members: map[string]bool{"u1": true}, reject: errors.New("invalid player state")}
	_, base := newTestServer(t, backend, "")

	conn, _, err := websocket.DefaultDialer.Dial(base+"/realtime/sessions/s1?user_id=u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readEvent(t, conn)

	if err := conn.WriteJSON(ClientFrame{Type: FrameState, Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	e := readEvent(t, conn)
	if e.Type != EventError {
		t.Fatalf("expected error event, got %+v", e)
	}
}

func TestServerRejectsBeforeUpgrade(t *testing.T) {
	backend := &fakeBackend{members: map[string]bool{"u1": true}}
	_, base := newTestServer(t, backend, "secret")

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"missing user", "/realtime/sessions/s1?token=secret", http.StatusBadRequest},
		{"bad token", "/realtime/sessions/s1?user_id=u1&token=nope", http.StatusUnauthorized},
		{"not a member", "/realtime/sessions/s1?user_id=u9&token=secret", http.StatusForbidden},
	}
	for _, tc := range cases {
		_, resp, err := websocket.DefaultDialer.Dial(base+tc.path, nil)
		if err == nil {
			t.Fatalf("%s: expected dial to fail", tc.name)
		}
		if resp == nil || resp.StatusCode != tc.status {
			t.Fatalf("%s: expected status %d, got %v", tc.name, tc.status, resp)
		}
	}
}
