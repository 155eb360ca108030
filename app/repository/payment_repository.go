package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new pending payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.PendingPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepository) GetByExternalRef(ctx context.Context, externalRef string) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	if err := r.db.WithContext(ctx).Where("external_ref = ?", externalRef).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) GetByExternalRefForUpdate(ctx context.Context, externalRef string) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_ref = ?", externalRef).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) Resolve(ctx context.Context, payment *models.PendingPayment) error {
	tx := r.db.WithContext(ctx).Model(&models.PendingPayment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":         payment.Status,
			"provider_tx_id": payment.ProviderTxID,
			"failure_reason": payment.FailureReason,
			"resolved_at":    payment.ResolvedAt,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *paymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PendingPayment, error) {
	var payments []models.PendingPayment
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentPending, createdBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&payments).Error
	return payments, err
}
