package repository

import (
	"context"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
)

type purchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new purchase repository instance
func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, record *models.PurchaseRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *purchaseRepository) ListByUserAndContent(ctx context.Context, userID uint, contentID string) ([]models.PurchaseRecord, error) {
	var records []models.PurchaseRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND content_id = ? AND status = ?", userID, contentID, models.PurchaseStatusCompleted).
		Order("purchase_date ASC").
		Find(&records).Error
	return records, err
}

func (r *purchaseRepository) ListByUser(ctx context.Context, userID uint) ([]models.PurchaseRecord, error) {
	var records []models.PurchaseRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchase_date DESC").
		Find(&records).Error
	return records, err
}

func (r *purchaseRepository) GetByExternalRef(ctx context.Context, externalRef string) (*models.PurchaseRecord, error) {
	var record models.PurchaseRecord
	if err := r.db.WithContext(ctx).Where("external_ref = ?", externalRef).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
