package realtime

import (
	"log"
	"sync"
	"time"
)

const (
	EventSnapshot      = "snapshot"
	EventPlayerJoined  = "player_joined"
	EventPlayerState   = "player_state"
	EventPlayerLeft    = "player_left"
	EventSessionStatus = "session_status"
	EventError         = "error"
)

// Event is one change on a session channel. Seq increases by one per published
// event within a session; Version is the player row version for player events.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Version   int64     `json:"version,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Subscription receives the events of one session until closed.
type Subscription struct {
	SessionID string
	C         <-chan Event

	ch     chan Event
	hub    *Hub
	closed bool
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

type Hub struct {
	mu     sync.Mutex
	buffer int
	seqs   map[string]uint64
	subs   map[string]map[*Subscription]struct{}
}

// NewHub returns a hub whose subscriptions buffer up to buffer events.
// A subscriber that falls further behind is disconnected instead of blocking publishers.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		buffer: buffer,
		seqs:   make(map[string]uint64),
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber and returns the session's current sequence number.
// Events published afterwards carry a larger Seq.
func (h *Hub) Subscribe(sessionID string) (*Subscription, uint64) {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{SessionID: sessionID, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.subs[sessionID]
	if group == nil {
		group = make(map[*Subscription]struct{})
		h.subs[sessionID] = group
	}
	group[sub] = struct{}{}
	return sub, h.seqs[sessionID]
}

// Publish stamps the event with the next sequence number and fans it out.
func (h *Hub) Publish(sessionID string, evt Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seqs[sessionID]++
	evt.Seq = h.seqs[sessionID]
	evt.SessionID = sessionID
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- evt:
		default:
			log.Printf("⚠️ [REALTIME] dropping slow subscriber on session %s (seq=%d)", sessionID, evt.Seq)
			h.removeLocked(sub)
		}
	}
	return evt
}

// Seq returns the last sequence number published on a session.
func (h *Hub) Seq(sessionID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seqs[sessionID]
}

// Subscribers returns how many subscribers a session has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// CloseSession disconnects every subscriber and forgets the session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		h.removeLocked(sub)
	}
	delete(h.seqs, sessionID)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	group := h.subs[sub.SessionID]
	if group == nil {
		return
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(h.subs, sub.SessionID)
	}
}
