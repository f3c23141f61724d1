package models

import "time"

// Character mirrors the YAML catalog so ownership rows have something to join against.
type Character struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Price     int64     `gorm:"not null;default:0" json:"price"`
	Rarity    string    `gorm:"type:varchar(16);not null;default:'common'" json:"rarity"`
	Starter   bool      `gorm:"not null;default:false" json:"starter"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OwnedCharacter records that a user may play a character.
type OwnedCharacter struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_owned_user_character" json:"user_id"`
	CharacterID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_owned_user_character" json:"character_id"`
	PricePaid   int64     `gorm:"not null;default:0" json:"price_paid"`
	AcquiredAt  time.Time `gorm:"not null" json:"acquired_at"`
}
