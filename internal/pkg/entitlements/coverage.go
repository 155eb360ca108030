package entitlements

import (
	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
)

// Coverage is the outcome of matching one episode against a user's records.
type Coverage struct {
	Covered bool
	Reason  Reason
	// Excluded is set when a bundle record exists for the episode's series or
	// season but its snapshot predates the episode.
	Excluded bool
}

// EpisodeCoverage checks records in precedence order: series snapshot,
// season snapshot, then an individual episode record. Records must belong to
// one user and one content and be completed.
func EpisodeCoverage(records []models.PurchaseRecord, seasonID, episodeID string) Coverage {
	var out Coverage
	for _, r := range records {
		if r.TargetKind != models.TargetSeries {
			continue
		}
		if r.SnapshotContains(episodeID) {
			return Coverage{Covered: true, Reason: ReasonSeriesPurchase}
		}
		out.Excluded = true
	}
	for _, r := range records {
		if r.TargetKind != models.TargetSeason || r.UnitID != seasonID {
			continue
		}
		if r.SnapshotContains(episodeID) {
			return Coverage{Covered: true, Reason: ReasonSeasonPurchase}
		}
		out.Excluded = true
	}
	for _, r := range records {
		if r.TargetKind == models.TargetEpisode && r.UnitID == episodeID {
			return Coverage{Covered: true, Reason: ReasonEpisodePurchase}
		}
	}
	return out
}

// Owns reports whether buying unit again would grant the user nothing new.
//
// A movie is owned once a movie record exists. A bundle is owned when a record
// for that exact bundle exists, or when every paid episode currently in it is
// already covered. An episode is owned when it is covered.
func Owns(records []models.PurchaseRecord, unit *catalog.Unit) bool {
	t := unit.Target
	for _, r := range records {
		if r.TargetKind == t.Kind && r.ContentID == t.ContentID && r.UnitID == t.UnitID {
			return true
		}
	}

	switch t.Kind {
	case models.TargetEpisode:
		return EpisodeCoverage(records, unit.Season.ID, unit.Episode.ID).Covered
	case models.TargetSeries, models.TargetSeason:
		if len(records) == 0 {
			return false
		}
		paid := 0
		for _, e := range unit.Episodes() {
			if e.Free {
				continue
			}
			paid++
			if !EpisodeCoverage(records, e.SeasonID, e.ID).Covered {
				return false
			}
		}
		return paid > 0
	default:
		return false
	}
}
