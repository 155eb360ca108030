package models

import "time"

// Wallet transaction kinds.
const (
	WalletTxTopUp        = "topup"
	WalletTxPurchase     = "purchase"
	WalletTxWelcomeBonus = "welcome_bonus"
	WalletTxRefund       = "refund"
	WalletTxAdjustment   = "adjustment"
)

// WalletAccount holds the two balance pools of a user. Amounts are in the
// ledger currency's minor unit. Rows are only mutated by the wallet service
// while the row is locked.
type WalletAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	PrimaryBalance int64     `gorm:"not null;default:0" json:"primary_balance"`
	BonusBalance   int64     `gorm:"not null;default:0" json:"bonus_balance"`
	Currency       string    `gorm:"type:varchar(8);not null" json:"currency"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Total returns primary plus bonus.
func (w *WalletAccount) Total() int64 {
	return w.PrimaryBalance + w.BonusBalance
}

// WalletTransaction is an append-only ledger line. Delta is signed and always
// equals PrimaryDelta + BonusDelta.
type WalletTransaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index:idx_wallet_tx_user_created,priority:1" json:"user_id"`
	Delta        int64     `gorm:"not null" json:"delta"`
	PrimaryDelta int64     `gorm:"not null;default:0" json:"primary_delta"`
	BonusDelta   int64     `gorm:"not null;default:0" json:"bonus_delta"`
	Kind         string    `gorm:"type:varchar(32);not null;index" json:"kind"`
	Description  string    `gorm:"type:varchar(255);default:''" json:"description"`
	Reference    string    `gorm:"type:varchar(191);default:'';index" json:"reference,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_wallet_tx_user_created,priority:2" json:"created_at"`
}
