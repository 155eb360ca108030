package repository

import (
	"context"
	"strings"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an API key hash to its user.
func (r *userRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	if err := r.db.WithContext(ctx).Where("api_key_hash = ? AND api_key_hash <> ''", trimmed).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateAPIKey persists the key fields set by User.IssueAPIKey.
func (r *userRepository) UpdateAPIKey(ctx context.Context, user *models.User) error {
	tx := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"api_key_hash":       user.APIKeyHash,
			"api_key_prefix":     user.APIKeyPrefix,
			"api_key_created_at": user.APIKeyCreatedAt,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
