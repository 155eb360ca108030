// Package catalog resolves purchase and access targets against the content
// structure owned by the catalog collaborator.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
)

var (
	ErrNotFound      = errors.New("content not found")
	ErrInvalidTarget = errors.New("invalid target")
)

// Target addresses one purchasable unit. UnitID is the season id for
// TargetSeason, the episode id for TargetEpisode and empty otherwise.
type Target struct {
	Kind      models.TargetKind `json:"kind"`
	ContentID string            `json:"content_id"`
	UnitID    string            `json:"unit_id,omitempty"`
}

func (t Target) String() string {
	if t.UnitID == "" {
		return fmt.Sprintf("%s:%s", t.Kind, t.ContentID)
	}
	return fmt.Sprintf("%s:%s/%s", t.Kind, t.ContentID, t.UnitID)
}

// Validate checks the shape of the target without touching storage.
func (t Target) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTarget, t.Kind)
	}
	if strings.TrimSpace(t.ContentID) == "" {
		return fmt.Errorf("%w: content id is required", ErrInvalidTarget)
	}
	switch t.Kind {
	case models.TargetSeason, models.TargetEpisode:
		if strings.TrimSpace(t.UnitID) == "" {
			return fmt.Errorf("%w: %s requires a unit id", ErrInvalidTarget, t.Kind)
		}
	default:
		if t.UnitID != "" {
			return fmt.Errorf("%w: %s takes no unit id", ErrInvalidTarget, t.Kind)
		}
	}
	return nil
}

// Unit is a resolved target together with the catalog state it was read from.
type Unit struct {
	Target  Target
	Content *models.Content
	Season  *models.Season
	Episode *models.Episode
}

// Episodes returns every episode the unit covers right now: all seasons for
// a series, one season for a season, the episode itself for an episode.
func (u *Unit) Episodes() []models.Episode {
	switch u.Target.Kind {
	case models.TargetSeries:
		return u.Content.AllEpisodes()
	case models.TargetSeason:
		return append([]models.Episode(nil), u.Season.Episodes...)
	case models.TargetEpisode:
		return []models.Episode{*u.Episode}
	default:
		return nil
	}
}

// EpisodeIDs lists the ids of Episodes.
func (u *Unit) EpisodeIDs() []string {
	eps := u.Episodes()
	ids := make([]string, 0, len(eps))
	for _, e := range eps {
		ids = append(ids, e.ID)
	}
	return ids
}

// IsFree reports whether the unit needs no entitlement at all: a free movie,
// a free episode, or a bundle without any paid episode.
func (u *Unit) IsFree() bool {
	switch u.Target.Kind {
	case models.TargetMovie:
		return u.Content.Free
	case models.TargetEpisode:
		return u.Episode.Free
	default:
		for _, e := range u.Episodes() {
			if !e.Free {
				return false
			}
		}
		return true
	}
}

// AssetKey returns the object storage key of the playable asset.
func (u *Unit) AssetKey() string {
	if u.Episode != nil {
		return u.Episode.AssetKey
	}
	return u.Content.AssetKey
}

// Resolve loads the content and checks that the addressed season or episode
// belongs to it. repo may be bound to an open transaction so the structure
// is read at the same instant a purchase is written.
func Resolve(ctx context.Context, repo repository.ContentRepository, t Target) (*Unit, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	content, err := repo.GetContent(ctx, t.ContentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: content %s", ErrNotFound, t.ContentID)
		}
		return nil, err
	}

	unit := &Unit{Target: t, Content: content}
	switch t.Kind {
	case models.TargetMovie:
		if content.Kind != models.ContentKindMovie {
			return nil, fmt.Errorf("%w: %s is not a movie", ErrInvalidTarget, content.ID)
		}
	case models.TargetSeries:
		if !content.IsSeries() {
			return nil, fmt.Errorf("%w: %s is not a series", ErrInvalidTarget, content.ID)
		}
	case models.TargetSeason:
		if !content.IsSeries() {
			return nil, fmt.Errorf("%w: %s is not a series", ErrInvalidTarget, content.ID)
		}
		unit.Season = content.FindSeason(t.UnitID)
		if unit.Season == nil {
			return nil, fmt.Errorf("%w: season %s in %s", ErrNotFound, t.UnitID, content.ID)
		}
	case models.TargetEpisode:
		if !content.IsSeries() {
			return nil, fmt.Errorf("%w: %s is not a series", ErrInvalidTarget, content.ID)
		}
		unit.Season, unit.Episode = content.FindEpisode(t.UnitID)
		if unit.Episode == nil {
			return nil, fmt.Errorf("%w: episode %s in %s", ErrNotFound, t.UnitID, content.ID)
		}
	}
	return unit, nil
}
