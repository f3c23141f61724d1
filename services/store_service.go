// services/store_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"realm-rivals/config"
	"realm-rivals/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StoreService struct {
	DB      *gorm.DB
	Catalog config.Catalog
}

func NewStoreService(db *gorm.DB, catalog config.Catalog) *StoreService {
	return &StoreService{DB: db, Catalog: catalog}
}

// PurchaseResult is what a successful purchase changed.
type PurchaseResult struct {
	Ownership   *models.OwnedCharacter `json:"ownership"`
	Transaction *models.CoinTransaction `json:"transaction,omitempty"`
	Coins       int64                   `json:"coins"`
}

// SyncCatalog mirrors the YAML catalog into the characters table.
func (s *StoreService) SyncCatalog(ctx context.Context) error {
	if len(s.Catalog.Characters) == 0 {
		return nil
	}
	rows := make([]models.Character, 0, len(s.Catalog.Characters))
	for _, ch := range s.Catalog.Characters {
		rows = append(rows, models.Character{
			ID:      ch.ID,
			Name:    ch.Name,
			Price:   ch.Price,
			Rarity:  ch.Rarity,
			Starter: ch.Starter,
		})
	}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "rarity", "starter", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("sync character catalog: %w", err)
	}
	log.Printf("✅ [STORE] Catalog synced (%d characters)", len(rows))
	return nil
}

func (s *StoreService) Characters(ctx context.Context) ([]models.Character, error) {
	var chars []models.Character
	if err := s.DB.WithContext(ctx).Order("price ASC, id ASC").Find(&chars).Error; err != nil {
		return nil, err
	}
	return chars, nil
}

func (s *StoreService) Owned(ctx context.Context, userID string) ([]models.OwnedCharacter, error) {
	var owned []models.OwnedCharacter
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("acquired_at ASC").
		Find(&owned).Error; err != nil {
		return nil, err
	}
	return owned, nil
}

func ownsTx(tx *gorm.DB, userID, characterID string) (bool, error) {
	var count int64
	if err := tx.Model(&models.OwnedCharacter{}).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func grantCharacterTx(tx *gorm.DB, userID, characterID string, price int64) (*models.OwnedCharacter, error) {
	own := &models.OwnedCharacter{
		ID:          uuid.NewString(),
		UserID:      userID,
		CharacterID: characterID,
		PricePaid:   price,
		AcquiredAt:  time.Now().UTC(),
	}
	if err := tx.Create(own).Error; err != nil {
		return nil, fmt.Errorf("record ownership: %w", err)
	}
	return own, nil
}

// Purchase debits the catalog price and records ownership atomically. expectedPrice, when
// given, must match the catalog so a stale client price never charges the wrong amount.
func (s *StoreService) Purchase(ctx context.Context, userID, characterID string, expectedPrice *int64) (*PurchaseResult, error) {
	ch, ok := s.Catalog.Character(characterID)
	if !ok {
		return nil, ErrUnknownCharacter
	}
	if expectedPrice != nil && *expectedPrice != ch.Price {
		return nil, ErrPriceMismatch
	}

	result := &PurchaseResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := lockProfile(tx, userID)
		if err != nil {
			return err
		}
		owned, err := ownsTx(tx, userID, ch.ID)
		if err != nil {
			return err
		}
		if owned {
			return ErrAlreadyOwned
		}
		if profile.Coins < ch.Price {
			return ErrInsufficientFunds
		}

		result.Coins = profile.Coins
		if ch.Price > 0 {
			entry, updated, err := adjustCoinsTx(tx, userID, -ch.Price, models.CoinReasonPurchase, "")
			if err != nil {
				return err
			}
			result.Transaction = entry
			result.Coins = updated.Coins
		}

		result.Ownership, err = grantCharacterTx(tx, userID, ch.ID, ch.Price)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🛒 [STORE] %s bought %s for %d (balance %d)", userID, ch.ID, ch.Price, result.Coins)
	return result, nil
}

// Select makes an owned character the profile's active one.
func (s *StoreService) Select(ctx context.Context, userID, characterID string) (*models.Profile, error) {
	if _, ok := s.Catalog.Character(characterID); !ok {
		return nil, ErrUnknownCharacter
	}
	var profile *models.Profile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		profile, err = lockProfile(tx, userID)
		if err != nil {
			return err
		}
		owned, err := ownsTx(tx, userID, characterID)
		if err != nil {
			return err
		}
		if !owned {
			return ErrNotOwned
		}
		profile.SelectedCharacterID = characterID
		return tx.Model(&models.Profile{}).Where("user_id = ?", userID).
			Update("selected_character_id", characterID).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotOwned) {
			log.Printf("🚫 [STORE] %s tried to select unowned %s", userID, characterID)
		}
		return nil, err
	}
	return profile, nil
}
