// services/profile_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"realm-rivals/config"
	"realm-rivals/models"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

type ProfileService struct {
	DB      *gorm.DB
	Catalog config.Catalog
}

func NewProfileService(db *gorm.DB, catalog config.Catalog) *ProfileService {
	return &ProfileService{DB: db, Catalog: catalog}
}

// usernameKey folds a username so that visually equal names collide.
func usernameKey(name string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(name)))
}

// usernameKeyMax is the width of profiles.username_key. Folding can grow a name
// (ß becomes ss), so the key gets more room than the 24 runes a name may have.
const usernameKeyMax = 96

func validUsername(name string) bool {
	name = norm.NFKC.String(strings.TrimSpace(name))
	n := utf8.RuneCountInString(name)
	if n < 3 || n > 24 {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return utf8.RuneCountInString(usernameKey(name)) <= usernameKeyMax
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func defaultUsername(userID string) string {
	id := strings.ReplaceAll(userID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "player-" + id
}

func usernameTakenTx(tx *gorm.DB, key, userID string) (bool, error) {
	var count int64
	if err := tx.Model(&models.Profile{}).
		Where("username_key = ? AND user_id <> ?", key, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure returns the user's profile, creating it with the starter coins and starter
// characters when missing. created reports whether a new profile was made.
func (s *ProfileService) Ensure(ctx context.Context, userID, username string) (profile *models.Profile, created bool, err error) {
	if username == "" {
		username = defaultUsername(userID)
	}
	username = norm.NFKC.String(strings.TrimSpace(username))
	if !validUsername(username) {
		return nil, false, ErrInvalidUsername
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Profile
		err := tx.Where("user_id = ?", userID).First(&existing).Error
		if err == nil {
			profile = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		key := usernameKey(username)
		taken, err := usernameTakenTx(tx, key, userID)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}

		starters := s.Catalog.StarterCharacters()
		p := &models.Profile{
			ID:          uuid.NewString(),
			UserID:      userID,
			Username:    username,
			UsernameKey: key,
		}
		if len(starters) > 0 {
			p.SelectedCharacterID = starters[0].ID
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		for _, ch := range starters {
			if _, err := grantCharacterTx(tx, userID, ch.ID, 0); err != nil {
				return err
			}
		}
		if s.Catalog.StarterCoins > 0 {
			_, updated, err := adjustCoinsTx(tx, userID, s.Catalog.StarterCoins, models.CoinReasonStarter, "starter:"+userID)
			if err != nil {
				return err
			}
			p.Coins = updated.Coins
		}
		profile = p
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Printf("🆕 [PROFILES] Created profile %s (%s) with %d coins", userID, profile.Username, profile.Coins)
	}
	return profile, created, nil
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// ProfileUpdate carries optional profile changes.
type ProfileUpdate struct {
	Username  *string
	AvatarURL *string
}

func (s *ProfileService) Update(ctx context.Context, userID string, upd ProfileUpdate) (*models.Profile, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		updates := map[string]any{}
		if upd.Username != nil {
			name := norm.NFKC.String(strings.TrimSpace(*upd.Username))
			if !validUsername(name) {
				return ErrInvalidUsername
			}
			key := usernameKey(name)
			taken, err := usernameTakenTx(tx, key, userID)
			if err != nil {
				return err
			}
			if taken {
				return ErrUsernameTaken
			}
			updates["username"] = name
			updates["username_key"] = key
			profile.Username = name
			profile.UsernameKey = key
		}
		if upd.AvatarURL != nil {
			updates["avatar_url"] = *upd.AvatarURL
			url := *upd.AvatarURL
			profile.AvatarURL = &url
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.Profile{}).Where("user_id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Search finds profiles whose username contains q (case-insensitive).
func (s *ProfileService) Search(ctx context.Context, q string, limit int) ([]models.Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	db := s.DB.WithContext(ctx).Model(&models.Profile{}).Limit(limit).Order("username ASC")
	if q = strings.TrimSpace(q); q != "" {
		db = db.Where(`username_key LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(usernameKey(q))+"%")
	}
	var profiles []models.Profile
	if err := db.Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}
