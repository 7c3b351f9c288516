package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"anischedule/internal/domain"
)

func seasonalMedia(id int, title string, episode int, airingAt time.Time, genres ...string) domain.Media {
	return domain.Media{
		ID:     id,
		IDMal:  id + 1,
		Format: "TV",
		Title:  domain.MediaTitle{UserPreferred: title},
		Genres: genres,
		AiringSchedule: &domain.AiringSchedule{Nodes: []domain.AiringNode{
			{Episode: episode, AiringAt: airingAt.Unix()},
		}},
	}
}

func TestSeasonalSplitsHentaiFromSub(t *testing.T) {
	now := base.Add(24 * time.Hour)
	u := newTestUpdater(nil, now)

	seasonal := []domain.Media{
		seasonalMedia(1, "Regular Show", 4, base),
		seasonalMedia(2, "Adult Show", 2, base, "Hentai"),
	}

	sub, hentai := u.updateSeasonal(seasonal, domain.Feed{}, domain.Feed{}, now)
	require.Len(t, sub, 1)
	require.Len(t, hentai, 1)
	require.Equal(t, 1, sub[0].ID)
	require.Equal(t, 4, sub[0].Episode.Aired)
	require.Equal(t, 2, hentai[0].ID)
	require.Equal(t, 2, hentai[0].Episode.Aired)
}

func TestSeasonalSkipsFutureAndRecorded(t *testing.T) {
	now := base.Add(24 * time.Hour)
	u := newTestUpdater(nil, now)

	seasonal := []domain.Media{
		seasonalMedia(1, "Future Show", 1, now.Add(48*time.Hour)),
		seasonalMedia(2, "Caught Up", 3, base),
	}
	existing := domain.Feed{record(2, 3, base)}

	sub, hentai := u.updateSeasonal(seasonal, existing, domain.Feed{}, now)
	require.Empty(t, hentai)
	require.Len(t, sub, 1, "only the already-recorded entry remains")
	require.Equal(t, 2, sub[0].ID)
}

func TestSeasonalIdempotent(t *testing.T) {
	now := base.Add(24 * time.Hour)
	u := newTestUpdater(nil, now)

	seasonal := []domain.Media{seasonalMedia(1, "Regular Show", 4, base)}

	first, _ := u.updateSeasonal(seasonal, domain.Feed{}, domain.Feed{}, now)
	second, _ := u.updateSeasonal(seasonal, first, domain.Feed{}, now)
	require.Equal(t, first, second)
}
