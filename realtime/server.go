package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	FrameState = "state"
	FramePing  = "ping"
	FramePong  = "pong"

	writeWait  = 10 * time.Second
	pingPeriod = 20 * time.Second
	readLimit  = 16 * 1024
)

var ErrNotMember = errors.New("user is not in this session")

// Backend is what the websocket server needs from the game services.
type Backend interface {
	IsMember(ctx context.Context, sessionID, userID string) (bool, error)
	Snapshot(ctx context.Context, sessionID string) (any, error)
	ApplyState(ctx context.Context, sessionID, userID string, raw json.RawMessage) error
	Touch(ctx context.Context, sessionID, userID string) error
}

// ClientFrame is a message sent by a connected player.
type ClientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Server struct {
	hub      *Hub
	backend  Backend
	token    string
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, backend Backend, token string) *Server {
	return &Server{
		hub:     hub,
		backend: backend,
		token:   token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/realtime/sessions/", s.serveSession)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return token == s.token
}

func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/realtime/sessions/"), "/")
	userID := r.URL.Query().Get("user_id")
	if sessionID == "" || strings.Contains(sessionID, "/") || userID == "" {
		http.Error(w, "session id and user_id are required", http.StatusBadRequest)
		return
	}
	if !s.authorized(r) {
		log.Printf("🚫 [REALTIME] rejected token for session %s user %s", sessionID, userID)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ok, err := s.backend.IsMember(r.Context(), sessionID, userID)
	if err != nil {
		log.Printf("❌ [REALTIME] membership check failed for %s/%s: %v", sessionID, userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, ErrNotMember.Error(), http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [REALTIME] upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(readLimit)

	// Subscribe before reading the snapshot so nothing published in between is lost.
	// Duplicates are harmless: clients keep the highest player version.
	sub, seq := s.hub.Subscribe(sessionID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	players, err := s.backend.Snapshot(ctx, sessionID)
	if err != nil {
		log.Printf("❌ [REALTIME] snapshot failed for session %s: %v", sessionID, err)
		_ = conn.Close()
		return
	}

	// The snapshot goes out before the write loop starts, so no buffered event can
	// overtake it.
	snapshot := Event{Seq: seq, Type: EventSnapshot, SessionID: sessionID, Payload: players, At: time.Now().UTC()}
	if err := writeJSON(conn, snapshot); err != nil {
		_ = conn.Close()
		return
	}

	out := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(conn, sub, out)
	}()

	log.Printf("🔌 [REALTIME] %s joined channel %s", userID, sessionID)
	s.readLoop(ctx, conn, sessionID, userID, out)
	log.Printf("🔌 [REALTIME] %s left channel %s", userID, sessionID)

	sub.Close()
	close(out)
	<-done
	_ = conn.Close()
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sessionID, userID string, out chan<- Event) {
	_ = conn.SetReadDeadline(time.Now().Add(pingPeriod * 2))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingPeriod * 2))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pingPeriod * 2))

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			sendError(out, sessionID, "malformed frame")
			continue
		}

		switch frame.Type {
		case FrameState:
			if err := s.backend.ApplyState(ctx, sessionID, userID, frame.Payload); err != nil {
				sendError(out, sessionID, err.Error())
			}
		case FramePing:
			if err := s.backend.Touch(ctx, sessionID, userID); err != nil {
				sendError(out, sessionID, err.Error())
				continue
			}
			select {
			case out <- Event{Type: FramePong, SessionID: sessionID, At: time.Now().UTC()}:
			default:
			}
		default:
			sendError(out, sessionID, "unknown frame type "+frame.Type)
		}
	}
}

func sendError(out chan<- Event, sessionID, msg string) {
	select {
	case out <- Event{Type: EventError, SessionID: sessionID, Payload: map[string]string{"message": msg}, At: time.Now().UTC()}:
	default:
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, sub *Subscription, out <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := sub.C
	for {
		select {
		case evt, ok := <-out:
			if !ok {
				return
			}
			if err := writeJSON(conn, evt); err != nil {
				_ = conn.Close()
				return
			}
		case evt, ok := <-events:
			if !ok {
				// Dropped by the hub or closed by the reader; the client reconnects and resyncs.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync required"),
					time.Now().Add(writeWait))
				_ = conn.Close()
				events = nil
				continue
			}
			if err := writeJSON(conn, evt); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
