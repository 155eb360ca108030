package repository

import (
	"context"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
)

type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new content repository instance
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) CreateContent(ctx context.Context, content *models.Content) error {
	return r.db.WithContext(ctx).Omit("Seasons").Create(content).Error
}

func (r *contentRepository) CreateSeason(ctx context.Context, season *models.Season) error {
	return r.db.WithContext(ctx).Omit("Episodes").Create(season).Error
}

func (r *contentRepository) CreateEpisode(ctx context.Context, episode *models.Episode) error {
	return r.db.WithContext(ctx).Create(episode).Error
}

// GetContent loads a content item with its full season/episode structure.
func (r *contentRepository) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var content models.Content
	err := r.db.WithContext(ctx).
		Preload("Seasons.Episodes").
		Where("id = ?", id).
		First(&content).Error
	if err != nil {
		return nil, err
	}
	content.SortStructure()
	return &content, nil
}
