// services/session_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"realm-rivals/config"
	"realm-rivals/database"
	"realm-rivals/models"
	"realm-rivals/realtime"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionArchiver stores the final state of a completed session somewhere durable.
type SessionArchiver interface {
	ArchiveSession(ctx context.Context, session *models.GameSession, players []models.SessionPlayer) error
}

type SessionService struct {
	DB        *gorm.DB
	Catalog   config.Catalog
	Publisher EventPublisher
	Archiver  SessionArchiver
}

func NewSessionService(db *gorm.DB, catalog config.Catalog, publisher EventPublisher, archiver SessionArchiver) *SessionService {
	return &SessionService{
		DB:        db,
		Catalog:   catalog,
		Publisher: publisherOrNop(publisher),
		Archiver:  archiver,
	}
}

// pendingEvent is published once the transaction that produced it has committed.
type pendingEvent struct {
	sessionID string
	evt       realtime.Event
}

func (s *SessionService) flush(events []pendingEvent) {
	for _, e := range events {
		s.Publisher.Publish(e.sessionID, e.evt)
	}
}

func statusEvent(session *models.GameSession) pendingEvent {
	return pendingEvent{sessionID: session.ID, evt: realtime.Event{
		Type: realtime.EventSessionStatus,
		Payload: map[string]any{
			"status":       session.Status,
			"player_count": session.PlayerCount,
			"max_players":  session.MaxPlayers,
			"host_id":      session.HostID,
		},
	}}
}

// createSessionTx inserts an empty waiting session for mode.
func createSessionTx(tx *gorm.DB, mode config.Mode, hostID string, private bool, now time.Time) (*models.GameSession, error) {
	session := &models.GameSession{
		ID:             uuid.NewString(),
		Mode:           mode.Name,
		Status:         models.SessionStatusWaiting,
		PlayerCount:    0,
		MaxPlayers:     mode.MaxPlayers,
		HostID:         hostID,
		IsPrivate:      private,
		LastActivityAt: now,
	}
	if err := tx.Create(session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// joinTx seats userID in a session the caller has already locked. Joining a session the
// user is already in returns the existing row without touching the counter.
func (s *SessionService) joinTx(tx *gorm.DB, session *models.GameSession, userID, characterID string, now time.Time) (*models.SessionPlayer, []pendingEvent, error) {
	// Postgres keeps microseconds; the published row must match what later reads return.
	now = now.Truncate(time.Microsecond)

	var existing models.SessionPlayer
	err := tx.Where("session_id = ? AND user_id = ?", session.ID, userID).First(&existing).Error
	if err == nil {
		return &existing, nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	switch {
	case session.Status == models.SessionStatusFull:
		return nil, nil, ErrSessionFull
	case session.Status != models.SessionStatusWaiting:
		return nil, nil, ErrSessionClosed
	case session.PlayerCount >= session.MaxPlayers:
		return nil, nil, ErrSessionFull
	}

	characterID, err = s.resolveCharacterTx(tx, userID, characterID)
	if err != nil {
		return nil, nil, err
	}

	// The guard keeps the counter honest even if the row was not locked (SQLite) or a
	// stale copy was read.
	res := tx.Model(&models.GameSession{}).
		Where("id = ? AND status = ? AND player_count < max_players", session.ID, models.SessionStatusWaiting).
		Updates(map[string]any{
			"player_count":     gorm.Expr("player_count + 1"),
			"last_activity_at": now,
		})
	if res.Error != nil {
		return nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil, ErrSessionFull
	}
	session.PlayerCount++
	session.LastActivityAt = now

	teams := 1
	if mode, ok := s.Catalog.Mode(session.Mode); ok {
		teams = mode.Teams
	}
	seat := session.PlayerCount - 1
	player := &models.SessionPlayer{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		UserID:      userID,
		CharacterID: characterID,
		PositionX:   float64(seat) * 2,
		DirectionZ:  1,
		Health:      100,
		Team:        seat % teams,
		LastSeenAt:  now,
		JoinedAt:    now,
	}
	if err := tx.Create(player).Error; err != nil {
		return nil, nil, fmt.Errorf("create session player: %w", err)
	}

	events := []pendingEvent{{sessionID: session.ID, evt: realtime.Event{
		Type:    realtime.EventPlayerJoined,
		UserID:  userID,
		Version: player.Version,
		Payload: player,
	}}}

	if session.PlayerCount >= session.MaxPlayers {
		if err := setStatusTx(tx, session, models.SessionStatusFull, now); err != nil {
			return nil, nil, err
		}
		events = append(events, statusEvent(session))
	}
	return player, events, nil
}

// resolveCharacterTx checks the requested character is owned, falling back to the
// profile's selected character.
func (s *SessionService) resolveCharacterTx(tx *gorm.DB, userID, characterID string) (string, error) {
	if characterID == "" {
		var profile models.Profile
		if err := tx.Where("user_id = ?", userID).First(&profile).Error; err == nil {
			return profile.SelectedCharacterID, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		return "", nil
	}
	if ch, ok := s.Catalog.Character(characterID); ok && ch.Starter {
		return characterID, nil
	}
	var count int64
	if err := tx.Model(&models.OwnedCharacter{}).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return "", ErrNotOwned
	}
	return characterID, nil
}

func setStatusTx(tx *gorm.DB, session *models.GameSession, status string, now time.Time) error {
	if session.Status == status {
		return nil
	}
	if !models.CanTransition(session.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Status, status)
	}
	updates := map[string]any{"status": status, "last_activity_at": now}
	switch status {
	case models.SessionStatusActive:
		updates["started_at"] = now
		session.StartedAt = &now
	case models.SessionStatusCompleted:
		updates["completed_at"] = now
		session.CompletedAt = &now
	}
	if err := tx.Model(&models.GameSession{}).Where("id = ?", session.ID).Updates(updates).Error; err != nil {
		return err
	}
	session.Status = status
	session.LastActivityAt = now
	return nil
}

func lockSession(tx *gorm.DB, sessionID string) (*models.GameSession, error) {
	var session models.GameSession
	if err := database.ForUpdate(tx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// CreateLobby opens a private session hosted by hostID, for invitations.
func (s *SessionService) CreateLobby(ctx context.Context, hostID, modeName string) (*models.GameSession, *models.SessionPlayer, error) {
	mode, ok := s.Catalog.Mode(modeName)
	if !ok {
		return nil, nil, ErrInvalidMode
	}
	var (
		session *models.GameSession
		player  *models.SessionPlayer
		events  []pendingEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var err error
		session, err = createSessionTx(tx, mode, hostID, true, now)
		if err != nil {
			return err
		}
		player, events, err = s.joinTx(tx, session, hostID, "", now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.flush(events)
	log.Printf("🏠 [SESSIONS] Lobby %s (%s) opened by %s", session.ID, session.Mode, hostID)
	return session, player, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.GameSession, error) {
	var session models.GameSession
	if err := s.DB.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Join seats a user in a specific session. Repeated joins are no-ops.
func (s *SessionService) Join(ctx context.Context, sessionID, userID, characterID string) (*models.GameSession, *models.SessionPlayer, error) {
	var (
		session *models.GameSession
		player  *models.SessionPlayer
		events  []pendingEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		player, events, err = s.joinTx(tx, session, userID, characterID, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.flush(events)
	return session, player, nil
}

// Leave removes a user from a session.
func (s *SessionService) Leave(ctx context.Context, sessionID, userID string) (*models.GameSession, error) {
	return s.removePlayer(ctx, sessionID, userID, "left")
}

func (s *SessionService) removePlayer(ctx context.Context, sessionID, userID, reason string) (*models.GameSession, error) {
	var (
		session *models.GameSession
		events  []pendingEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		res := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).Delete(&models.SessionPlayer{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotInSession
		}

		if err := tx.Model(&models.GameSession{}).
			Where("id = ? AND player_count > 0", sessionID).
			Updates(map[string]any{
				"player_count":     gorm.Expr("player_count - 1"),
				"last_activity_at": now,
			}).Error; err != nil {
			return err
		}
		if session.PlayerCount > 0 {
			session.PlayerCount--
		}
		events = append(events, pendingEvent{sessionID: sessionID, evt: realtime.Event{
			Type:    realtime.EventPlayerLeft,
			UserID:  userID,
			Payload: map[string]string{"reason": reason},
		}})

		before := session.Status
		switch {
		case session.PlayerCount == 0 && session.Status != models.SessionStatusCompleted:
			err = setStatusTx(tx, session, models.SessionStatusCompleted, now)
		case session.Status == models.SessionStatusFull:
			err = setStatusTx(tx, session, models.SessionStatusWaiting, now)
		}
		if err != nil {
			return err
		}

		hostChanged := false
		if session.HostID == userID && session.PlayerCount > 0 {
			var next models.SessionPlayer
			if err := tx.Where("session_id = ?", sessionID).Order("joined_at ASC").First(&next).Error; err == nil {
				session.HostID = next.UserID
				hostChanged = true
				if err := tx.Model(&models.GameSession{}).Where("id = ?", sessionID).
					Update("host_id", next.UserID).Error; err != nil {
					return err
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if before != session.Status || hostChanged {
			events = append(events, statusEvent(session))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(events)
	log.Printf("👋 [SESSIONS] %s removed from %s (%s), %d/%d remain",
		userID, sessionID, reason, session.PlayerCount, session.MaxPlayers)
	if session.Status == models.SessionStatusCompleted {
		s.archive(ctx, session)
	}
	return session, nil
}

// Start moves a waiting or full session to active. Only the host may start it.
func (s *SessionService) Start(ctx context.Context, sessionID, userID string) (*models.GameSession, error) {
	var session *models.GameSession
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if session.HostID != userID {
			return ErrNotHost
		}
		return setStatusTx(tx, session, models.SessionStatusActive, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.flush([]pendingEvent{statusEvent(session)})
	log.Printf("▶️ [SESSIONS] Session %s started by %s", sessionID, userID)
	return session, nil
}

// Complete ends a session. An empty userID means the system is closing it.
func (s *SessionService) Complete(ctx context.Context, sessionID, userID string) (*models.GameSession, error) {
	var session *models.GameSession
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if userID != "" {
			var count int64
			if err := tx.Model(&models.SessionPlayer{}).
				Where("session_id = ? AND user_id = ?", sessionID, userID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 && session.HostID != userID {
				return ErrNotInSession
			}
		}
		return setStatusTx(tx, session, models.SessionStatusCompleted, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.flush([]pendingEvent{statusEvent(session)})
	log.Printf("🏁 [SESSIONS] Session %s completed", sessionID)
	s.archive(ctx, session)
	return session, nil
}

// ListPlayers returns the current roster, used by clients to reconcile their view.
func (s *SessionService) ListPlayers(ctx context.Context, sessionID string) ([]models.SessionPlayer, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	var players []models.SessionPlayer
	if err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("joined_at ASC").
		Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

// CompleteIdle closes sessions nobody has touched since cutoff.
func (s *SessionService) CompleteIdle(ctx context.Context, idleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-idleAfter)
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.GameSession{}).
		Where("status <> ? AND last_activity_at < ?", models.SessionStatusCompleted, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range ids {
		if _, err := s.Complete(ctx, id, ""); err != nil {
			log.Printf("⚠️ [SESSIONS] Failed to close idle session %s: %v", id, err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *SessionService) archive(ctx context.Context, session *models.GameSession) {
	if s.Archiver == nil {
		return
	}
	var players []models.SessionPlayer
	if err := s.DB.WithContext(ctx).Where("session_id = ?", session.ID).Find(&players).Error; err != nil {
		log.Printf("⚠️ [ARCHIVE] Could not load roster for %s: %v", session.ID, err)
		return
	}
	if err := s.Archiver.ArchiveSession(ctx, session, players); err != nil {
		log.Printf("⚠️ [ARCHIVE] Failed to archive session %s: %v", session.ID, err)
	}
}
