package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"realm-rivals/models"
	"realm-rivals/realtime"
	"realm-rivals/services"

	"github.com/gorilla/websocket"
)

// Client talks to the game service as one user: REST under /api and the realtime channel.
type Client struct {
	BaseURL     string
	RealtimeURL string
	Token       string
	UserID      string
	HTTP        *http.Client
	Dialer      *websocket.Dialer
}

func NewClient(baseURL, realtimeURL, token, userID string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		RealtimeURL: strings.TrimRight(realtimeURL, "/"),
		Token:       token,
		UserID:      userID,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		Dialer:      websocket.DefaultDialer,
	}
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("game service returned %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("X-User-ID", c.UserID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// EnsureProfile creates the user's profile if it does not exist yet.
func (c *Client) EnsureProfile(ctx context.Context, username string) (*models.Profile, error) {
	var p models.Profile
	err := c.do(ctx, http.MethodPost, "/api/profile", map[string]string{"userId": c.UserID, "username": username}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Match is the matchmaking response.
type Match struct {
	SessionID   string               `json:"sessionId"`
	Mode        string               `json:"mode"`
	Status      string               `json:"status"`
	PlayerCount int                  `json:"playerCount"`
	MaxPlayers  int                  `json:"maxPlayers"`
	Player      models.SessionPlayer `json:"player"`
	Created     bool                 `json:"created"`
	Rejoined    bool                 `json:"rejoined"`
}

func (c *Client) FindMatch(ctx context.Context, mode string) (*Match, error) {
	var m Match
	if err := c.do(ctx, http.MethodPost, "/api/game/matchmaking", map[string]string{"userId": c.UserID, "mode": mode}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Players fetches the session roster for reconciliation.
func (c *Client) Players(ctx context.Context, sessionID string) ([]models.SessionPlayer, uint64, error) {
	var out struct {
		Players []models.SessionPlayer `json:"players"`
		Seq     uint64                 `json:"seq"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/game/sessions/"+url.PathEscape(sessionID)+"/players", nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Players, out.Seq, nil
}

// UpdateState sends a state update over REST, used when no channel is open.
func (c *Client) UpdateState(ctx context.Context, sessionID string, upd services.StateUpdate) (*models.SessionPlayer, error) {
	var p models.SessionPlayer
	path := fmt.Sprintf("/api/game/sessions/%s/players/%s/state", url.PathEscape(sessionID), url.PathEscape(c.UserID))
	if err := c.do(ctx, http.MethodPut, path, upd, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Leave(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/game/sessions/"+url.PathEscape(sessionID)+"/leave", map[string]string{"userId": c.UserID}, nil)
}

// Conn is an open realtime channel. Reads and writes may happen from different goroutines.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Subscribe opens the realtime channel of a session. The first event is the snapshot.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (*Conn, error) {
	u, err := url.Parse(c.RealtimeURL + "/realtime/sessions/" + url.PathEscape(sessionID))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("user_id", c.UserID)
	if c.Token != "" {
		q.Set("token", c.Token)
	}
	u.RawQuery = q.Encode()

	ws, resp, err := c.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) ReadEvent() (Event, error) {
	var evt Event
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return evt, err
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

func (c *Conn) writeFrame(ctx context.Context, frame realtime.ClientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteJSON(frame)
}

func (c *Conn) SendState(ctx context.Context, upd services.StateUpdate) error {
	raw, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	return c.writeFrame(ctx, realtime.ClientFrame{Type: realtime.FrameState, Payload: raw})
}

func (c *Conn) Heartbeat(ctx context.Context) error {
	return c.writeFrame(ctx, realtime.ClientFrame{Type: realtime.FramePing})
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// IsClosed reports whether err means the channel has gone away.
func IsClosed(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, io.EOF)
}
