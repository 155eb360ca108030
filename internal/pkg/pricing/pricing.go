// Package pricing computes what a purchasable unit costs right now.
package pricing

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
)

// ErrInvalidPricing marks catalog data that cannot be sold, such as a paid
// unit priced at zero. It is never treated as a free grant.
var ErrInvalidPricing = errors.New("invalid pricing")

type Resolver struct {
	rounding string
}

// NewResolver returns a resolver using config.RoundingNearest or
// config.RoundingFloor. Anything else falls back to nearest.
func NewResolver(rounding string) *Resolver {
	if rounding != config.RoundingFloor {
		rounding = config.RoundingNearest
	}
	return &Resolver{rounding: rounding}
}

// PriceOf returns the charge in minor units. Free units cost 0.
func (r *Resolver) PriceOf(u *catalog.Unit) (int64, error) {
	switch u.Target.Kind {
	case models.TargetMovie:
		if u.Content.Free {
			return 0, nil
		}
		if u.Content.Price <= 0 {
			return 0, fmt.Errorf("%w: movie %s has no price", ErrInvalidPricing, u.Content.ID)
		}
		return u.Content.Price, nil

	case models.TargetEpisode:
		return episodePrice(u.Episode)

	case models.TargetSeason, models.TargetSeries:
		pct := u.Content.DiscountPercent
		if pct < 0 || pct > 100 {
			return 0, fmt.Errorf("%w: discount %d%% on %s", ErrInvalidPricing, pct, u.Content.ID)
		}
		var sum int64
		for _, e := range u.Episodes() {
			p, err := episodePrice(&e)
			if err != nil {
				return 0, err
			}
			sum += p
		}
		if sum == 0 {
			return 0, nil
		}
		price := r.discount(sum, pct)
		if price <= 0 {
			return 0, fmt.Errorf("%w: %s discounts to zero", ErrInvalidPricing, u.Target)
		}
		return price, nil

	default:
		return 0, fmt.Errorf("%w: %s", catalog.ErrInvalidTarget, u.Target)
	}
}

func episodePrice(e *models.Episode) (int64, error) {
	if e.Free {
		return 0, nil
	}
	if e.Price <= 0 {
		return 0, fmt.Errorf("%w: episode %s has no price", ErrInvalidPricing, e.ID)
	}
	return e.Price, nil
}

// discount applies pct percent off sum and rounds to a whole minor unit.
func (r *Resolver) discount(sum int64, pct int) int64 {
	keep := sum * int64(100-pct)
	if r.rounding == config.RoundingFloor {
		return keep / 100
	}
	return (keep + 50) / 100
}
