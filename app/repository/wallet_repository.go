package repository

import (
	"context"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository instance
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(ctx context.Context, account *models.WalletAccount) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(account)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *walletRepository) Get(ctx context.Context, userID uint) (*models.WalletAccount, error) {
	var account models.WalletAccount
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetForUpdate issues SELECT ... FOR UPDATE. Concurrent purchases and
// settlements for the same user queue on this row lock; other users are not
// affected.
func (r *walletRepository) GetForUpdate(ctx context.Context, userID uint) (*models.WalletAccount, error) {
	var account models.WalletAccount
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *walletRepository) UpdateBalances(ctx context.Context, account *models.WalletAccount) error {
	tx := r.db.WithContext(ctx).Model(&models.WalletAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"primary_balance": account.PrimaryBalance,
			"bonus_balance":   account.BonusBalance,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *walletRepository) AppendTransaction(ctx context.Context, walletTx *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(walletTx).Error
}

func (r *walletRepository) ListTransactions(ctx context.Context, userID uint, limit int) ([]models.WalletTransaction, error) {
	var txs []models.WalletTransaction
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

func (r *walletRepository) SumDeltas(ctx context.Context, userID uint) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error
	return sum, err
}
