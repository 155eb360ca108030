// Package entitlements answers whether a user may watch a movie or episode,
// based on the user's purchase records and the current content structure.
package entitlements

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
)

type Reason string

const (
	ReasonAdmin              Reason = "admin"
	ReasonFree               Reason = "free"
	ReasonMoviePurchase      Reason = "movie_purchase"
	ReasonSeriesPurchase     Reason = "series_purchase"
	ReasonSeasonPurchase     Reason = "season_purchase"
	ReasonEpisodePurchase    Reason = "episode_purchase"
	ReasonNotPurchased       Reason = "not_purchased"
	ReasonAddedAfterPurchase Reason = "added_after_purchase"
)

var messages = map[Reason]string{
	ReasonNotPurchased:       "You have not purchased this content.",
	ReasonAddedAfterPurchase: "This episode was added after your purchase and has to be bought separately.",
}

// Decision is the answer to an access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
	Message string `json:"message,omitempty"`
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }
func deny(r Reason) Decision  { return Decision{Reason: r, Message: messages[r]} }

// PlayableTarget builds the target for an access check: the movie itself when
// episodeID is empty, otherwise the episode of a series.
func PlayableTarget(contentID, episodeID string) catalog.Target {
	if episodeID == "" {
		return catalog.Target{Kind: models.TargetMovie, ContentID: contentID}
	}
	return catalog.Target{Kind: models.TargetEpisode, ContentID: contentID, UnitID: episodeID}
}

// AccessResolver evaluates access checks. It never writes.
type AccessResolver struct {
	content   repository.ContentRepository
	purchases repository.PurchaseRepository
}

func NewAccessResolver(repos *repository.Repositories) *AccessResolver {
	return &AccessResolver{content: repos.Content, purchases: repos.Purchase}
}

// CanAccess decides whether user may play target. user may be nil for an
// anonymous caller, who can still watch free content. Only movie and episode
// targets are playable.
func (r *AccessResolver) CanAccess(ctx context.Context, user *models.User, target catalog.Target) (Decision, *catalog.Unit, error) {
	if target.Kind != models.TargetMovie && target.Kind != models.TargetEpisode {
		return Decision{}, nil, fmt.Errorf("%w: only movies and episodes are playable", catalog.ErrInvalidTarget)
	}
	unit, err := catalog.Resolve(ctx, r.content, target)
	if err != nil {
		return Decision{}, nil, err
	}

	if user != nil && user.IsAdmin() {
		return allow(ReasonAdmin), unit, nil
	}
	if isFree(unit) {
		return allow(ReasonFree), unit, nil
	}
	if user == nil {
		return deny(ReasonNotPurchased), unit, nil
	}

	records, err := r.purchases.ListByUserAndContent(ctx, user.ID, unit.Content.ID)
	if err != nil {
		return Decision{}, nil, err
	}

	var d Decision
	if target.Kind == models.TargetMovie {
		d = deny(ReasonNotPurchased)
		for _, rec := range records {
			if rec.TargetKind == models.TargetMovie {
				d = allow(ReasonMoviePurchase)
				break
			}
		}
	} else {
		c := EpisodeCoverage(records, unit.Season.ID, unit.Episode.ID)
		switch {
		case c.Covered:
			d = allow(c.Reason)
		case c.Excluded:
			d = deny(ReasonAddedAfterPurchase)
		default:
			d = deny(ReasonNotPurchased)
		}
	}

	log.Debugw("[Access] decision", "user_id", user.ID, "target", target.String(), "allowed", d.Allowed, "reason", d.Reason)
	return d, unit, nil
}

// isFree treats a free flag and a missing price the same for reading. Buying
// such a unit is a different matter and handled by the purchase path.
func isFree(u *catalog.Unit) bool {
	if u.Episode != nil {
		return u.Episode.Free || u.Episode.Price <= 0
	}
	return u.Content.Free || u.Content.Price <= 0
}
