package models

import "time"

const (
	CoinReasonGrant    = "grant"
	CoinReasonStarter  = "starter"
	CoinReasonPurchase = "character_purchase"
	CoinReasonPayment  = "coin_purchase"
)

// CoinTransaction is one append-only ledger entry. Reference, when set, is an idempotency key.
type CoinTransaction struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Delta        int64     `gorm:"not null" json:"delta"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	Reason       string    `gorm:"type:varchar(32);not null" json:"reason"`
	Reference    *string   `gorm:"type:varchar(128);uniqueIndex" json:"reference,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
