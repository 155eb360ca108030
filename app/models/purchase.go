package models

import "time"

// TargetKind names the purchasable unit a record or request refers to.
type TargetKind string

const (
	TargetMovie   TargetKind = "movie"
	TargetSeries  TargetKind = "series"
	TargetSeason  TargetKind = "season"
	TargetEpisode TargetKind = "episode"
)

// Valid reports whether k is one of the known target kinds.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetMovie, TargetSeries, TargetSeason, TargetEpisode:
		return true
	default:
		return false
	}
}

// IsBundle reports whether the kind covers several episodes.
func (k TargetKind) IsBundle() bool {
	return k == TargetSeries || k == TargetSeason
}

const (
	PurchaseStatusCompleted = "completed"
	PurchaseStatusRefunded  = "refunded"
)

const (
	PaymentMethodWallet  = "wallet"
	PaymentMethodGateway = "gateway"
)

// PurchaseRecord is an entitlement grant. It is immutable once written.
// UnitID is the season or episode id for season/episode purchases and empty
// otherwise, so the unique index enforces one record per (user, target).
type PurchaseRecord struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index:ux_purchases_user_target,unique,priority:1;index:idx_purchases_user_content,priority:1" json:"user_id"`
	TargetKind    TargetKind `gorm:"type:varchar(16);not null;index:ux_purchases_user_target,unique,priority:2" json:"target_kind"`
	ContentID     string     `gorm:"type:varchar(64);not null;index:ux_purchases_user_target,unique,priority:3;index:idx_purchases_user_content,priority:2" json:"content_id"`
	UnitID        string     `gorm:"type:varchar(64);not null;default:'';index:ux_purchases_user_target,unique,priority:4" json:"unit_id,omitempty"`
	PricePaid     int64      `gorm:"not null" json:"price_paid"`
	Currency      string     `gorm:"type:varchar(8);not null" json:"currency"`
	PaymentMethod string     `gorm:"type:varchar(16);not null;default:'wallet'" json:"payment_method"`
	ExternalRef   *string    `gorm:"type:varchar(191);uniqueIndex" json:"external_ref,omitempty"`
	SnapshotIDs   []string   `gorm:"serializer:json;type:text" json:"snapshot_ids,omitempty"`
	Status        string     `gorm:"type:varchar(16);not null;default:'completed'" json:"status"`
	PurchaseDate  time.Time  `gorm:"not null" json:"purchase_date"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// IsCompleted reports whether the record currently grants access.
func (p *PurchaseRecord) IsCompleted() bool {
	return p.Status == PurchaseStatusCompleted
}

// SnapshotContains reports whether episodeID existed when the bundle was bought.
func (p *PurchaseRecord) SnapshotContains(episodeID string) bool {
	for _, id := range p.SnapshotIDs {
		if id == episodeID {
			return true
		}
	}
	return false
}
