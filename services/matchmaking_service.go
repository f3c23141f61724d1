// services/matchmaking_service.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"realm-rivals/database"
	"realm-rivals/models"

	"gorm.io/gorm"
)

const matchmakingAttempts = 3

type MatchmakingService struct {
	Sessions *SessionService
}

func NewMatchmakingService(sessions *SessionService) *MatchmakingService {
	return &MatchmakingService{Sessions: sessions}
}

// MatchResult is the session a player was placed into.
type MatchResult struct {
	Session  *models.GameSession
	Player   *models.SessionPlayer
	Created  bool
	Rejoined bool
}

// FindMatch places userID into the oldest public waiting session of mode with room left,
// creating one when none exists. A user already seated in an open session of that mode
// gets the same session back.
func (s *MatchmakingService) FindMatch(ctx context.Context, userID, modeName string) (*MatchResult, error) {
	mode, ok := s.Sessions.Catalog.Mode(modeName)
	if !ok {
		return nil, ErrInvalidMode
	}
	db := s.Sessions.DB.WithContext(ctx)

	var current models.GameSession
	err := db.Model(&models.GameSession{}).
		Joins("JOIN session_players ON session_players.session_id = game_sessions.id").
		Where("session_players.user_id = ? AND game_sessions.mode = ? AND game_sessions.status IN ?",
			userID, mode.Name, []string{models.SessionStatusWaiting, models.SessionStatusFull, models.SessionStatusActive}).
		Order("game_sessions.created_at DESC").
		First(&current).Error
	if err == nil {
		var player models.SessionPlayer
		if err := db.Where("session_id = ? AND user_id = ?", current.ID, userID).First(&player).Error; err != nil {
			return nil, err
		}
		return &MatchResult{Session: &current, Player: &player, Rejoined: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	for attempt := 1; attempt <= matchmakingAttempts; attempt++ {
		var (
			result MatchResult
			events []pendingEvent
		)
		// The last attempt stops competing for existing sessions and opens a fresh one.
		reuse := attempt < matchmakingAttempts

		err := db.Transaction(func(tx *gorm.DB) error {
			now := time.Now().UTC()

			var candidate models.GameSession
			var session *models.GameSession
			if reuse {
				err := database.ForUpdate(tx).
					Where("mode = ? AND status = ? AND is_private = ? AND player_count < max_players",
						mode.Name, models.SessionStatusWaiting, false).
					Order("created_at ASC").
					First(&candidate).Error
				switch {
				case err == nil:
					session = &candidate
				case !errors.Is(err, gorm.ErrRecordNotFound):
					return err
				}
			}
			if session == nil {
				created, err := createSessionTx(tx, mode, userID, false, now)
				if err != nil {
					return err
				}
				session = created
				result.Created = true
			}

			player, evts, err := s.Sessions.joinTx(tx, session, userID, "", now)
			if err != nil {
				return err
			}
			result.Session = session
			result.Player = player
			events = evts
			return nil
		})
		if errors.Is(err, ErrSessionFull) || errors.Is(err, ErrSessionClosed) {
			log.Printf("🔁 [MATCHMAKING] Lost race for a %s slot (attempt %d/%d) user=%s",
				mode.Name, attempt, matchmakingAttempts, userID)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.Sessions.flush(events)
		log.Printf("🎯 [MATCHMAKING] %s -> session %s (%s %d/%d, created=%t)",
			userID, result.Session.ID, mode.Name, result.Session.PlayerCount, result.Session.MaxPlayers, result.Created)
		return &result, nil
	}
	return nil, ErrSessionFull
}
