package models

import (
	"sort"
	"time"
)

const (
	ContentKindMovie  = "movie"
	ContentKindSeries = "series"
)

// Content is either a movie with a flat price or a series made of seasons.
// Catalog authoring happens elsewhere; this service only reads it.
type Content struct {
	ID              string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Kind            string    `gorm:"type:varchar(16);not null;index" json:"kind"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	Price           int64     `gorm:"not null;default:0" json:"price"`
	Free            bool      `gorm:"default:false" json:"free"`
	DiscountPercent int       `gorm:"not null;default:0" json:"discount_percent"`
	AssetKey        string    `gorm:"type:varchar(255);default:''" json:"-"`
	Seasons         []Season  `gorm:"foreignKey:ContentID" json:"seasons,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Season groups episodes of a series.
type Season struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	ContentID string    `gorm:"type:varchar(64);not null;index" json:"content_id"`
	Number    int       `gorm:"not null" json:"number"`
	Title     string    `gorm:"type:varchar(255);default:''" json:"title"`
	Episodes  []Episode `gorm:"foreignKey:SeasonID" json:"episodes,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Episode ids are assigned at authoring time and never reused, so they stay
// stable when episodes are reordered.
type Episode struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	SeasonID  string    `gorm:"type:varchar(64);not null;index" json:"season_id"`
	ContentID string    `gorm:"type:varchar(64);not null;index" json:"content_id"`
	Number    int       `gorm:"not null" json:"number"`
	Title     string    `gorm:"type:varchar(255);default:''" json:"title"`
	Price     int64     `gorm:"not null;default:0" json:"price"`
	Free      bool      `gorm:"default:false" json:"free"`
	AssetKey  string    `gorm:"type:varchar(255);default:''" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsSeries reports whether the content is a series.
func (c *Content) IsSeries() bool {
	return c.Kind == ContentKindSeries
}

// FindSeason returns the season with the given id or nil.
func (c *Content) FindSeason(id string) *Season {
	for i := range c.Seasons {
		if c.Seasons[i].ID == id {
			return &c.Seasons[i]
		}
	}
	return nil
}

// FindEpisode returns the episode with the given id and its season.
func (c *Content) FindEpisode(id string) (*Season, *Episode) {
	for i := range c.Seasons {
		s := &c.Seasons[i]
		for j := range s.Episodes {
			if s.Episodes[j].ID == id {
				return s, &s.Episodes[j]
			}
		}
	}
	return nil, nil
}

// AllEpisodes returns every episode of every season in display order.
func (c *Content) AllEpisodes() []Episode {
	var out []Episode
	for _, s := range c.Seasons {
		out = append(out, s.Episodes...)
	}
	return out
}

// SortStructure orders seasons and their episodes by number.
func (c *Content) SortStructure() {
	sort.SliceStable(c.Seasons, func(i, j int) bool { return c.Seasons[i].Number < c.Seasons[j].Number })
	for i := range c.Seasons {
		eps := c.Seasons[i].Episodes
		sort.SliceStable(eps, func(a, b int) bool { return eps[a].Number < eps[b].Number })
	}
}
