package syncclient

import (
	"context"
	"sync"
	"time"

	"realm-rivals/services"
)

// LocalState is the part of the local player the broadcaster mirrors.
type LocalState struct {
	Position    services.Vec3
	Direction   services.Vec3
	IsMoving    bool
	IsSprinting bool
	IsJumping   bool
}

func (s LocalState) update() services.StateUpdate {
	pos, dir := s.Position, s.Direction
	moving, sprinting, jumping := s.IsMoving, s.IsSprinting, s.IsJumping
	return services.StateUpdate{
		Position:    &pos,
		Direction:   &dir,
		IsMoving:    &moving,
		IsSprinting: &sprinting,
		IsJumping:   &jumping,
	}
}

// Sender is where the broadcaster writes. *Conn implements it.
type Sender interface {
	SendState(ctx context.Context, upd services.StateUpdate) error
	Heartbeat(ctx context.Context) error
}

// Broadcaster sends the local state on a fixed tick, only when it changed, and a
// heartbeat when nothing was sent for a while so the server keeps the player alive.
type Broadcaster struct {
	Tick      time.Duration
	Heartbeat time.Duration

	mu      sync.Mutex
	current LocalState
	dirty   bool
	sent    int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{Tick: 100 * time.Millisecond, Heartbeat: time.Second}
}

// Set replaces the local state; it is sent on the next tick.
func (b *Broadcaster) Set(s LocalState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s != b.current {
		b.current = s
		b.dirty = true
	}
}

func (b *Broadcaster) State() LocalState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Sent returns how many state updates went out.
func (b *Broadcaster) Sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

func (b *Broadcaster) take() (LocalState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirty {
		return b.current, false
	}
	b.dirty = false
	b.sent++
	return b.current, true
}

// Run sends until ctx is done or a write fails.
func (b *Broadcaster) Run(ctx context.Context, out Sender) error {
	ticker := time.NewTicker(b.Tick)
	defer ticker.Stop()
	lastSend := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if s, changed := b.take(); changed {
				if err := out.SendState(ctx, s.update()); err != nil {
					b.mu.Lock()
					b.dirty = true
					b.mu.Unlock()
					return err
				}
				lastSend = now
				continue
			}
			if now.Sub(lastSend) >= b.Heartbeat {
				if err := out.Heartbeat(ctx); err != nil {
					return err
				}
				lastSend = now
			}
		}
	}
}
