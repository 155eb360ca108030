package controllers

import (
	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
)

// TargetRequest identifies a purchasable unit in a body or query string.
type TargetRequest struct {
	Kind      string `json:"kind" query:"kind" validate:"required,oneof=movie series season episode"`
	ContentID string `json:"content_id" query:"content_id" validate:"required,max=64"`
	UnitID    string `json:"unit_id" query:"unit_id" validate:"max=64"`
}

func (r TargetRequest) Target() catalog.Target {
	return catalog.Target{Kind: models.TargetKind(r.Kind), ContentID: r.ContentID, UnitID: r.UnitID}
}

// AccessRequest names a playable item: a movie, or an episode of a series.
type AccessRequest struct {
	ContentID string `query:"content_id" validate:"required,max=64"`
	EpisodeID string `query:"episode_id" validate:"max=64"`
}

type TopUpRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// AdjustmentRequest is a signed manual correction by an administrator.
type AdjustmentRequest struct {
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required,max=255"`
	ToBonus     bool   `json:"to_bonus"`
}
