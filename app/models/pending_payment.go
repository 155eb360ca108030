package models

import "time"

// PaymentPurpose tells settlement what to do once the gateway confirms.
type PaymentPurpose string

const (
	PurposeWalletTopUp     PaymentPurpose = "wallet_topup"
	PurposeContentPurchase PaymentPurpose = "content_purchase"
)

// PaymentStatus moves pending -> completed or pending -> failed exactly once.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// PendingPayment tracks an external payment from initiation to settlement.
type PendingPayment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	ExternalRef   string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"external_ref"`
	ProviderTxID  string         `gorm:"type:varchar(191);default:''" json:"provider_tx_id,omitempty"`
	Purpose       PaymentPurpose `gorm:"type:varchar(32);not null" json:"purpose"`
	Amount        int64          `gorm:"not null" json:"amount"`
	Currency      string         `gorm:"type:varchar(8);not null" json:"currency"`
	Status        PaymentStatus  `gorm:"type:varchar(16);not null;default:'pending';index:idx_pending_payments_status_created,priority:1" json:"status"`
	TargetKind    TargetKind     `gorm:"type:varchar(16);default:''" json:"target_kind,omitempty"`
	ContentID     string         `gorm:"type:varchar(64);default:''" json:"content_id,omitempty"`
	UnitID        string         `gorm:"type:varchar(64);default:''" json:"unit_id,omitempty"`
	RedirectLink  string         `gorm:"type:varchar(512);default:''" json:"redirect_link,omitempty"`
	FailureReason string         `gorm:"type:varchar(255);default:''" json:"failure_reason,omitempty"`
	ResolvedAt    *time.Time     `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index:idx_pending_payments_status_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
