// services/coin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"realm-rivals/database"
	"realm-rivals/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CoinService struct {
	DB *gorm.DB
}

func NewCoinService(db *gorm.DB) *CoinService {
	return &CoinService{DB: db}
}

// Adjust adds delta (negative to debit) to a user's balance and appends a ledger entry in
// one transaction. The balance never goes below zero. A non-empty reference makes the call
// idempotent: replaying it returns the original entry and changes nothing.
func (s *CoinService) Adjust(ctx context.Context, userID string, delta int64, reason, reference string) (*models.CoinTransaction, *models.Profile, error) {
	var (
		entry   *models.CoinTransaction
		profile *models.Profile
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, profile, err = adjustCoinsTx(tx, userID, delta, reason, reference)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, profile, nil
}

func lockProfile(tx *gorm.DB, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := database.ForUpdate(tx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func adjustCoinsTx(tx *gorm.DB, userID string, delta int64, reason, reference string) (*models.CoinTransaction, *models.Profile, error) {
	if delta == 0 {
		return nil, nil, ErrZeroAmount
	}
	profile, err := lockProfile(tx, userID)
	if err != nil {
		return nil, nil, err
	}

	if reference != "" {
		var prior models.CoinTransaction
		err := tx.Where("reference = ?", reference).First(&prior).Error
		if err == nil {
			if prior.UserID != userID {
				return nil, nil, fmt.Errorf("%w: reference belongs to another user", ErrForbidden)
			}
			return &prior, profile, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, err
		}
	}

	res := tx.Model(&models.Profile{}).
		Where("user_id = ? AND coins + ? >= 0", userID, delta).
		Update("coins", gorm.Expr("coins + ?", delta))
	if res.Error != nil {
		return nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil, ErrInsufficientFunds
	}
	profile.Coins += delta

	entry := &models.CoinTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: profile.Coins,
		Reason:       reason,
	}
	if reference != "" {
		ref := reference
		entry.Reference = &ref
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, nil, fmt.Errorf("append ledger entry: %w", err)
	}
	log.Printf("🪙 [COINS] %s %+d (%s) -> %d", userID, delta, reason, profile.Coins)
	return entry, profile, nil
}

// Balance returns the user's current coin balance.
func (s *CoinService) Balance(ctx context.Context, userID string) (int64, error) {
	var profile models.Profile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return profile.Coins, nil
}

// History lists the newest ledger entries first.
func (s *CoinService) History(ctx context.Context, userID string, limit int) ([]models.CoinTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.CoinTransaction
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
