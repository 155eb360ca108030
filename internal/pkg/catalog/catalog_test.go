package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
)

func seed(t *testing.T) *repository.Repositories {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()
	require.NoError(t, repos.Content.CreateContent(ctx, &models.Content{ID: "movie", Kind: models.ContentKindMovie, Price: 900, AssetKey: "movies/movie.mp4"}))
	require.NoError(t, repos.Content.CreateContent(ctx, &models.Content{ID: "show", Kind: models.ContentKindSeries, DiscountPercent: 10}))
	require.NoError(t, repos.Content.CreateSeason(ctx, &models.Season{ID: "s1", ContentID: "show", Number: 1}))
	require.NoError(t, repos.Content.CreateSeason(ctx, &models.Season{ID: "s2", ContentID: "show", Number: 2}))
	require.NoError(t, repos.Content.CreateEpisode(ctx, &models.Episode{ID: "e1", SeasonID: "s1", ContentID: "show", Number: 1, Free: true, AssetKey: "show/e1.mp4"}))
	require.NoError(t, repos.Content.CreateEpisode(ctx, &models.Episode{ID: "e2", SeasonID: "s1", ContentID: "show", Number: 2, Price: 300}))
	require.NoError(t, repos.Content.CreateEpisode(ctx, &models.Episode{ID: "e3", SeasonID: "s2", ContentID: "show", Number: 1, Price: 300}))
	return repos
}

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		target Target
		ok     bool
	}{
		{Target{Kind: models.TargetMovie, ContentID: "m"}, true},
		{Target{Kind: models.TargetMovie, ContentID: "m", UnitID: "x"}, false},
		{Target{Kind: models.TargetSeason, ContentID: "s"}, false},
		{Target{Kind: models.TargetEpisode, ContentID: "s", UnitID: "e"}, true},
		{Target{Kind: "bundle", ContentID: "s"}, false},
		{Target{Kind: models.TargetSeries}, false},
	}
	for _, tt := range tests {
		err := tt.target.Validate()
		if tt.ok {
			assert.NoError(t, err, tt.target.String())
		} else {
			assert.ErrorIs(t, err, ErrInvalidTarget, tt.target.String())
		}
	}
}

func TestResolve(t *testing.T) {
	repos := seed(t)
	ctx := context.Background()

	series, err := Resolve(ctx, repos.Content, Target{Kind: models.TargetSeries, ContentID: "show"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, series.EpisodeIDs())
	assert.False(t, series.IsFree())

	season, err := Resolve(ctx, repos.Content, Target{Kind: models.TargetSeason, ContentID: "show", UnitID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, season.EpisodeIDs())

	ep, err := Resolve(ctx, repos.Content, Target{Kind: models.TargetEpisode, ContentID: "show", UnitID: "e1"})
	require.NoError(t, err)
	assert.True(t, ep.IsFree())
	assert.Equal(t, "s1", ep.Season.ID)
	assert.Equal(t, "show/e1.mp4", ep.AssetKey())

	movie, err := Resolve(ctx, repos.Content, Target{Kind: models.TargetMovie, ContentID: "movie"})
	require.NoError(t, err)
	assert.Equal(t, "movies/movie.mp4", movie.AssetKey())
}

func TestResolveErrors(t *testing.T) {
	repos := seed(t)
	ctx := context.Background()

	_, err := Resolve(ctx, repos.Content, Target{Kind: models.TargetMovie, ContentID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve(ctx, repos.Content, Target{Kind: models.TargetEpisode, ContentID: "show", UnitID: "e9"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve(ctx, repos.Content, Target{Kind: models.TargetSeason, ContentID: "show", UnitID: "s9"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve(ctx, repos.Content, Target{Kind: models.TargetMovie, ContentID: "show"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = Resolve(ctx, repos.Content, Target{Kind: models.TargetSeries, ContentID: "movie"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
