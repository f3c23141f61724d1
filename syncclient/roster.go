// Package syncclient mirrors a session's players on the client side and broadcasts the
// local player's movement.
package syncclient

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"realm-rivals/models"
	"realm-rivals/realtime"
)

// PlayerState is how much the client currently trusts a remote player entry.
type PlayerState int

const (
	StateUnknown PlayerState = iota
	StateTracked
	StateStale
)

func (s PlayerState) String() string {
	switch s {
	case StateTracked:
		return "tracked"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Event is a realtime.Event as received over the wire, payload still encoded.
type Event struct {
	Seq       uint64          `json:"seq"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Version   int64           `json:"version,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	At        time.Time       `json:"at"`
}

// RemotePlayer is the client's view of another player.
type RemotePlayer struct {
	Player    models.SessionPlayer
	State     PlayerState
	UpdatedAt time.Time
}

// rowKey orders writes to one player. A rejoin creates a new row with a later JoinedAt,
// which outranks any version of the previous row. JoinedAt is compared at the
// microsecond precision the database stores.
type rowKey struct {
	joinedAt time.Time
	version  int64
}

func keyOf(p models.SessionPlayer) rowKey {
	return rowKey{joinedAt: p.JoinedAt.Truncate(time.Microsecond), version: p.Version}
}

func (k rowKey) newerThan(o rowKey) bool {
	if !k.joinedAt.Equal(o.joinedAt) {
		return k.joinedAt.After(o.joinedAt)
	}
	return k.version > o.version
}

// Roster merges events, snapshots and reconciliation polls into one player map. Every
// source goes through the same version check, so the order they arrive in does not matter.
type Roster struct {
	mu          sync.Mutex
	self        string
	staleAfter  time.Duration
	removeAfter time.Duration
	now         func() time.Time

	players map[string]*RemotePlayer
	// departed remembers the last row seen for players that left, so late events for
	// that row cannot resurrect them.
	departed map[string]rowKey
	lastSeq  uint64
}

func NewRoster(self string, staleAfter time.Duration) *Roster {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Second
	}
	return &Roster{
		self:        self,
		staleAfter:  staleAfter,
		removeAfter: 3 * staleAfter,
		now:         time.Now,
		players:     make(map[string]*RemotePlayer),
		departed:    make(map[string]rowKey),
	}
}

// Apply merges one channel event and reports whether the roster changed.
func (r *Roster) Apply(evt Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.Seq > r.lastSeq {
		r.lastSeq = evt.Seq
	}

	switch evt.Type {
	case realtime.EventSnapshot:
		var players []models.SessionPlayer
		if err := json.Unmarshal(evt.Payload, &players); err != nil {
			return false
		}
		return r.reconcileLocked(players, r.now())
	case realtime.EventPlayerJoined, realtime.EventPlayerState:
		var p models.SessionPlayer
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.UserID == "" {
			return false
		}
		return r.upsertLocked(p, false)
	case realtime.EventPlayerLeft:
		return r.removeLocked(evt.UserID, true)
	}
	return false
}

// upsertLocked stores p when it is newer than what the roster holds. listed is set for
// rows from a snapshot or poll: the server still has the player, so an entry that is not
// newer is still marked alive.
func (r *Roster) upsertLocked(p models.SessionPlayer, listed bool) bool {
	if p.UserID == r.self {
		return false
	}
	k := keyOf(p)
	if gone, ok := r.departed[p.UserID]; ok {
		if !k.newerThan(gone) {
			return false
		}
		delete(r.departed, p.UserID)
	}
	if cur, ok := r.players[p.UserID]; ok && !k.newerThan(keyOf(cur.Player)) {
		if !listed {
			return false
		}
		cur.UpdatedAt = r.now()
		if cur.State != StateTracked {
			cur.State = StateTracked
			return true
		}
		return false
	}
	r.players[p.UserID] = &RemotePlayer{Player: p, State: StateTracked, UpdatedAt: r.now()}
	return true
}

// removeLocked drops userID. With tombstone set, the last row seen is remembered so late
// events for it are ignored.
func (r *Roster) removeLocked(userID string, tombstone bool) bool {
	cur, ok := r.players[userID]
	if !ok {
		return false
	}
	if tombstone {
		r.departed[userID] = keyOf(cur.Player)
	}
	delete(r.players, userID)
	return true
}

// Reconcile merges a full player list fetched at fetchedAt. Players missing from it are
// dropped unless something newer than the fetch has been heard from them.
func (r *Roster) Reconcile(players []models.SessionPlayer, fetchedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconcileLocked(players, fetchedAt)
}

func (r *Roster) reconcileLocked(players []models.SessionPlayer, fetchedAt time.Time) bool {
	changed := false
	present := make(map[string]bool, len(players))
	for _, p := range players {
		present[p.UserID] = true
		if r.upsertLocked(p, true) {
			changed = true
		}
	}
	for id, cur := range r.players {
		if present[id] {
			continue
		}
		if fetchedAt.IsZero() || cur.UpdatedAt.Before(fetchedAt) {
			r.removeLocked(id, true)
			changed = true
		}
	}
	return changed
}

// Sweep marks players stale after staleAfter without news and forgets them after
// three times that. Forgotten players are not tombstoned; the next poll that lists them
// brings them back.
func (r *Roster) Sweep() (stale, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, cur := range r.players {
		age := now.Sub(cur.UpdatedAt)
		switch {
		case age >= r.removeAfter:
			r.removeLocked(id, false)
			removed++
		case age >= r.staleAfter && cur.State != StateStale:
			cur.State = StateStale
			stale++
		}
	}
	return stale, removed
}

// State reports what the client knows about userID.
func (r *Roster) State(userID string) PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.players[userID]; ok {
		return cur.State
	}
	return StateUnknown
}

func (r *Roster) Get(userID string) (RemotePlayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.players[userID]
	if !ok {
		return RemotePlayer{}, false
	}
	return *cur, true
}

// Players returns a copy of every known remote player, ordered by user id.
func (r *Roster) Players() []RemotePlayer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemotePlayer, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player.UserID < out[j].Player.UserID })
	return out
}

// LastSeq is the highest channel sequence number applied.
func (r *Roster) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}
