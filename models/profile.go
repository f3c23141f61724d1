// models/profile.go
package models

// Profile is the game-side record for an authenticated user.
type Profile struct {
	ID                  string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID              string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	Username            string  `gorm:"type:varchar(32);not null" json:"username"`
	UsernameKey         string  `gorm:"type:varchar(96);uniqueIndex;not null" json:"-"`
	AvatarURL           *string `json:"avatar_url,omitempty"`
	Coins               int64   `gorm:"not null;default:0" json:"coins"`
	SelectedCharacterID string  `gorm:"type:varchar(64)" json:"selected_character_id"`

	Timestamps
}
