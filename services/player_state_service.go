// services/player_state_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"realm-rivals/database"
	"realm-rivals/models"
	"realm-rivals/realtime"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	sprintMultiplier = 1.6
	moveTolerance    = 1.0
	maxMoveWindow    = 2 * time.Second
)

// Vec3 is a position or facing direction.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) finite() bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// StateUpdate is a partial player update; nil fields are left untouched.
type StateUpdate struct {
	Position    *Vec3           `json:"position,omitempty"`
	Direction   *Vec3           `json:"direction,omitempty"`
	IsMoving    *bool           `json:"isMoving,omitempty"`
	IsSprinting *bool           `json:"isSprinting,omitempty"`
	IsJumping   *bool           `json:"isJumping,omitempty"`
	Health      *int            `json:"health,omitempty"`
	Team        *int            `json:"team,omitempty"`
	Inventory   json.RawMessage `json:"inventory,omitempty"`
}

func (u StateUpdate) validate() error {
	if u.Position != nil && !u.Position.finite() {
		return fmt.Errorf("%w: position must be finite", ErrInvalidState)
	}
	if u.Direction != nil && !u.Direction.finite() {
		return fmt.Errorf("%w: direction must be finite", ErrInvalidState)
	}
	if u.Health != nil && (*u.Health < 0 || *u.Health > 100) {
		return fmt.Errorf("%w: health out of range", ErrInvalidState)
	}
	if u.Team != nil && (*u.Team < 0 || *u.Team > 7) {
		return fmt.Errorf("%w: team out of range", ErrInvalidState)
	}
	return ValidateInventory(u.Inventory)
}

type PlayerStateService struct {
	DB           *gorm.DB
	Sessions     *SessionService
	Publisher    EventPublisher
	MaxMoveSpeed float64
}

func NewPlayerStateService(sessions *SessionService, maxMoveSpeed float64) *PlayerStateService {
	return &PlayerStateService{
		DB:           sessions.DB,
		Sessions:     sessions,
		Publisher:    sessions.Publisher,
		MaxMoveSpeed: maxMoveSpeed,
	}
}

// clampMove limits how far a player may travel since its last accepted update.
func (s *PlayerStateService) clampMove(from, to Vec3, sprinting bool, elapsed time.Duration) Vec3 {
	if s.MaxMoveSpeed <= 0 {
		return to
	}
	if elapsed > maxMoveWindow {
		elapsed = maxMoveWindow
	}
	speed := s.MaxMoveSpeed
	if sprinting {
		speed *= sprintMultiplier
	}
	limit := speed*elapsed.Seconds() + moveTolerance

	dx, dy, dz := to.X-from.X, to.Y-from.Y, to.Z-from.Z
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist <= limit {
		return to
	}
	scale := limit / dist
	return Vec3{X: from.X + dx*scale, Y: from.Y + dy*scale, Z: from.Z + dz*scale}
}

// UpdateState applies a player's update, bumps its version and publishes it.
func (s *PlayerStateService) UpdateState(ctx context.Context, sessionID, userID string, upd StateUpdate) (*models.SessionPlayer, error) {
	// An explicit null inventory means "unchanged", like an omitted one.
	if string(bytes.TrimSpace(upd.Inventory)) == "null" {
		upd.Inventory = nil
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}

	var player models.SessionPlayer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.GameSession
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if session.Status == models.SessionStatusCompleted {
			return ErrSessionClosed
		}

		if err := database.ForUpdate(tx).
			Where("session_id = ? AND user_id = ?", sessionID, userID).
			First(&player).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotInSession
			}
			return err
		}

		now := time.Now().UTC()
		if upd.IsSprinting != nil {
			player.IsSprinting = *upd.IsSprinting
		}
		if upd.Position != nil {
			from := Vec3{X: player.PositionX, Y: player.PositionY, Z: player.PositionZ}
			pos := s.clampMove(from, *upd.Position, player.IsSprinting, now.Sub(player.LastSeenAt))
			player.PositionX, player.PositionY, player.PositionZ = pos.X, pos.Y, pos.Z
		}
		if upd.Direction != nil {
			player.DirectionX, player.DirectionY, player.DirectionZ = upd.Direction.X, upd.Direction.Y, upd.Direction.Z
		}
		if upd.IsMoving != nil {
			player.IsMoving = *upd.IsMoving
		}
		if upd.IsJumping != nil {
			player.IsJumping = *upd.IsJumping
		}
		if upd.Health != nil {
			player.Health = *upd.Health
		}
		if upd.Team != nil {
			player.Team = *upd.Team
		}
		if len(upd.Inventory) > 0 {
			player.Inventory = datatypes.JSON(upd.Inventory)
		}
		player.Version++
		player.LastSeenAt = now

		if err := tx.Save(&player).Error; err != nil {
			return err
		}
		return tx.Model(&models.GameSession{}).Where("id = ?", sessionID).
			Update("last_activity_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(sessionID, realtime.Event{
		Type:    realtime.EventPlayerState,
		UserID:  userID,
		Version: player.Version,
		Payload: player,
	})
	return &player, nil
}

// Touch records a heartbeat without changing the player's state.
func (s *PlayerStateService) Touch(ctx context.Context, sessionID, userID string) error {
	res := s.DB.WithContext(ctx).Model(&models.SessionPlayer{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Update("last_seen_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotInSession
	}
	return nil
}

// IsMember reports whether userID currently has a row in the session.
func (s *PlayerStateService) IsMember(ctx context.Context, sessionID, userID string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.SessionPlayer{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Snapshot returns the roster for a freshly connected subscriber.
func (s *PlayerStateService) Snapshot(ctx context.Context, sessionID string) (any, error) {
	return s.Sessions.ListPlayers(ctx, sessionID)
}

// ApplyState decodes a websocket state frame and applies it.
func (s *PlayerStateService) ApplyState(ctx context.Context, sessionID, userID string, raw json.RawMessage) error {
	var upd StateUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	_, err := s.UpdateState(ctx, sessionID, userID, upd)
	return err
}

// ReapStale removes players that have not sent an update or heartbeat since staleAfter.
func (s *PlayerStateService) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var stale []models.SessionPlayer
	open := s.DB.Model(&models.GameSession{}).Select("id").
		Where("status <> ?", models.SessionStatusCompleted)
	if err := s.DB.WithContext(ctx).
		Where("last_seen_at < ? AND session_id IN (?)", cutoff, open).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range stale {
		if _, err := s.Sessions.removePlayer(ctx, p.SessionID, p.UserID, "timeout"); err != nil {
			if errors.Is(err, ErrNotInSession) || errors.Is(err, ErrNotFound) {
				continue
			}
			log.Printf("⚠️ [PLAYERS] Failed to reap %s from %s: %v", p.UserID, p.SessionID, err)
			continue
		}
		removed++
	}
	return removed, nil
}
