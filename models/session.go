// models/session.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SessionStatusWaiting   = "waiting"
	SessionStatusFull      = "full"
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// sessionTransitions lists the statuses reachable from each status.
var sessionTransitions = map[string][]string{
	SessionStatusWaiting: {SessionStatusFull, SessionStatusActive, SessionStatusCompleted},
	SessionStatusFull:    {SessionStatusWaiting, SessionStatusActive, SessionStatusCompleted},
	SessionStatusActive:  {SessionStatusCompleted},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range sessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// GameSession is one pending or running match (a lobby when private).
type GameSession struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Mode           string     `gorm:"type:varchar(16);not null;index:idx_sessions_mode_status" json:"mode"`
	Status         string     `gorm:"type:varchar(16);not null;default:'waiting';index:idx_sessions_mode_status" json:"status"`
	PlayerCount    int        `gorm:"not null;default:0" json:"player_count"`
	MaxPlayers     int        `gorm:"not null" json:"max_players"`
	HostID         string     `gorm:"type:varchar(64);index" json:"host_id"`
	IsPrivate      bool       `gorm:"not null;default:false" json:"is_private"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastActivityAt time.Time  `gorm:"index" json:"last_activity_at"`

	Timestamps
}

// Open reports whether new players may still join.
func (s *GameSession) Open() bool {
	return s.Status == SessionStatusWaiting && s.PlayerCount < s.MaxPlayers
}

// SessionPlayer is a player's live state inside a session. (session_id, user_id) is unique.
type SessionPlayer struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_session_players_session_user" json:"session_id"`
	UserID      string `gorm:"type:varchar(64);not null;uniqueIndex:idx_session_players_session_user;index" json:"user_id"`
	CharacterID string `gorm:"type:varchar(64)" json:"character_id"`

	PositionX float64 `gorm:"not null;default:0" json:"position_x"`
	PositionY float64 `gorm:"not null;default:0" json:"position_y"`
	PositionZ float64 `gorm:"not null;default:0" json:"position_z"`

	DirectionX float64 `gorm:"not null;default:0" json:"direction_x"`
	DirectionY float64 `gorm:"not null;default:0" json:"direction_y"`
	DirectionZ float64 `gorm:"not null;default:1" json:"direction_z"`

	IsMoving    bool `gorm:"not null;default:false" json:"is_moving"`
	IsSprinting bool `gorm:"not null;default:false" json:"is_sprinting"`
	IsJumping   bool `gorm:"not null;default:false" json:"is_jumping"`

	Health    int            `gorm:"not null;default:100" json:"health"`
	Team      int            `gorm:"not null;default:0" json:"team"`
	Inventory datatypes.JSON `gorm:"type:jsonb" json:"inventory"`

	// Version increases on every accepted state write; clients keep the highest one they saw.
	Version    int64     `gorm:"not null;default:0" json:"version"`
	LastSeenAt time.Time `gorm:"index;not null" json:"last_seen_at"`
	JoinedAt   time.Time `gorm:"not null" json:"joined_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
