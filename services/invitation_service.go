// services/invitation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"realm-rivals/database"
	"realm-rivals/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultInvitationTTL = 30 * time.Minute

type InvitationService struct {
	DB       *gorm.DB
	Sessions *SessionService
	TTL      time.Duration
}

func NewInvitationService(sessions *SessionService, ttl time.Duration) *InvitationService {
	if ttl <= 0 {
		ttl = defaultInvitationTTL
	}
	return &InvitationService{DB: sessions.DB, Sessions: sessions, TTL: ttl}
}

// Send invites recipientID into a lobby the sender is currently seated in.
func (s *InvitationService) Send(ctx context.Context, senderID, recipientID, lobbyID string) (*models.Invitation, error) {
	if senderID == recipientID {
		return nil, ErrSelfInvite
	}

	var inv *models.Invitation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lobby models.GameSession
		if err := tx.First(&lobby, "id = ?", lobbyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !lobby.Open() {
			return ErrSessionClosed
		}

		var seated int64
		if err := tx.Model(&models.SessionPlayer{}).
			Where("session_id = ? AND user_id = ?", lobbyID, senderID).
			Count(&seated).Error; err != nil {
			return err
		}
		if seated == 0 {
			return ErrNotInSession
		}

		now := time.Now().UTC()
		var dup int64
		if err := tx.Model(&models.Invitation{}).
			Where("sender_id = ? AND recipient_id = ? AND lobby_id = ? AND status = ? AND expires_at > ?",
				senderID, recipientID, lobbyID, models.InvitationPending, now).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateInvite
		}

		inv = &models.Invitation{
			ID:          uuid.NewString(),
			SenderID:    senderID,
			RecipientID: recipientID,
			LobbyID:     lobbyID,
			Status:      models.InvitationPending,
			ExpiresAt:   now.Add(s.TTL),
		}
		if err := tx.Create(inv).Error; err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✉️ [INVITES] %s invited %s to %s", senderID, recipientID, lobbyID)
	return inv, nil
}

// ListIncoming returns invitations addressed to userID. An empty status returns all of them;
// "pending" leaves out invitations that have already run out.
func (s *InvitationService) ListIncoming(ctx context.Context, userID, status string) ([]models.Invitation, error) {
	db := s.DB.WithContext(ctx).Where("recipient_id = ?", userID)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if status == models.InvitationPending {
		db = db.Where("expires_at > ?", time.Now().UTC())
	}
	var out []models.Invitation
	if err := db.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InvitationService) ListSent(ctx context.Context, userID string) ([]models.Invitation, error) {
	var out []models.Invitation
	if err := s.DB.WithContext(ctx).
		Where("sender_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// InvitationResult is the invitation after a response, plus the lobby seat when accepted.
type InvitationResult struct {
	Invitation *models.Invitation    `json:"invitation"`
	Session    *models.GameSession   `json:"session,omitempty"`
	Player     *models.SessionPlayer `json:"player,omitempty"`
}

func lockInvitation(tx *gorm.DB, id string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := database.ForUpdate(tx).First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Respond accepts or declines an invitation on behalf of its recipient. Accepting seats the
// recipient in the lobby within the same transaction, so an accepted invitation always has a
// matching player row.
func (s *InvitationService) Respond(ctx context.Context, invitationID, userID string, accept bool) (*InvitationResult, error) {
	var (
		result  InvitationResult
		events  []pendingEvent
		expired bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := lockInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		if inv.RecipientID != userID {
			return ErrForbidden
		}
		if inv.Status != models.InvitationPending {
			return ErrInvitationClosed
		}

		now := time.Now().UTC()
		if !now.Before(inv.ExpiresAt) {
			expired = true
			inv.Status = models.InvitationExpired
			result.Invitation = inv
			return tx.Model(&models.Invitation{}).Where("id = ?", inv.ID).
				Update("status", models.InvitationExpired).Error
		}

		status := models.InvitationDeclined
		if accept {
			session, err := lockSession(tx, inv.LobbyID)
			if err != nil {
				return err
			}
			player, evts, err := s.Sessions.joinTx(tx, session, userID, "", now)
			if err != nil {
				return err
			}
			result.Session = session
			result.Player = player
			events = evts
			status = models.InvitationAccepted
		}

		if err := tx.Model(&models.Invitation{}).Where("id = ?", inv.ID).
			Updates(map[string]any{"status": status, "responded_at": now}).Error; err != nil {
			return err
		}
		inv.Status = status
		inv.RespondedAt = &now
		result.Invitation = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return &result, ErrInvitationExpired
	}
	s.Sessions.flush(events)
	log.Printf("📨 [INVITES] %s %s invitation %s", userID, result.Invitation.Status, invitationID)
	return &result, nil
}

// Cancel withdraws a pending invitation. Only the sender may cancel.
func (s *InvitationService) Cancel(ctx context.Context, invitationID, senderID string) (*models.Invitation, error) {
	var inv *models.Invitation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = lockInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		if inv.SenderID != senderID {
			return ErrForbidden
		}
		if inv.Status != models.InvitationPending {
			return ErrInvitationClosed
		}
		now := time.Now().UTC()
		inv.Status = models.InvitationCancelled
		inv.RespondedAt = &now
		return tx.Model(&models.Invitation{}).Where("id = ?", inv.ID).
			Updates(map[string]any{"status": models.InvitationCancelled, "responded_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ExpirePending marks every pending invitation past its deadline as expired.
func (s *InvitationService) ExpirePending(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, time.Now().UTC()).
		Update("status", models.InvitationExpired)
	return res.RowsAffected, res.Error
}
