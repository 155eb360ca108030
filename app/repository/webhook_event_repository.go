package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *webhookEventRepository) ReplaceDelivery(ctx context.Context, id uint, externalRef, payload string, signatureValid bool) error {
	updates := map[string]interface{}{
		"external_ref":     externalRef,
		"payload_json":     payload,
		"signature_valid":  signatureValid,
		"processed_at":     nil,
		"processing_error": "",
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
