package models

import "time"

const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationDeclined  = "declined"
	InvitationCancelled = "cancelled"
	InvitationExpired   = "expired"
)

// Invitation asks a recipient to join the sender's lobby.
type Invitation struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SenderID    string     `gorm:"type:varchar(64);not null;index" json:"sender_id"`
	RecipientID string     `gorm:"type:varchar(64);not null;index:idx_invitations_recipient_status" json:"recipient_id"`
	LobbyID     string     `gorm:"type:varchar(36);not null;index" json:"lobby_id"`
	Status      string     `gorm:"type:varchar(16);not null;default:'pending';index:idx_invitations_recipient_status" json:"status"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	Timestamps
}
