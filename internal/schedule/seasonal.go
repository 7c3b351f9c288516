package schedule

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"anischedule/internal/domain"
	"anischedule/internal/store"
)

// SeasonAPI is the paged seasonal search slice of the metadata client.
type SeasonAPI interface {
	SeasonPage(ctx context.Context, season string, year, page int, status string) ([]domain.Media, bool, error)
}

var seasonNames = [4]string{"WINTER", "SPRING", "SUMMER", "FALL"}

func seasonOf(t time.Time) string {
	return seasonNames[int(t.Month()-1)/3]
}

// maxSeasonPages bounds the per-season sweep; a season never exceeds four
// 50-record pages of airing series.
const maxSeasonPages = 4

// Seasonal builds the sub-side schedule straight from seasonal metadata:
// the current season, still-releasing holdovers from earlier seasons, and a
// winter lookahead once fall starts.
type Seasonal struct {
	api    SeasonAPI
	store  *store.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewSeasonal(api SeasonAPI, st *store.Store, logger zerolog.Logger) *Seasonal {
	return &Seasonal{api: api, store: st, logger: logger, now: time.Now}
}

// Run assembles and persists the seasonal schedule for the sub pipeline.
func (s *Seasonal) Run(ctx context.Context) error {
	now := s.now()
	season := seasonOf(now)
	year := now.Year()

	var media []domain.Media
	collected, err := s.sweep(ctx, season, year, "")
	if err != nil {
		return err
	}
	media = append(media, collected...)

	// still-releasing holdovers: for every season, sweep the season before
	// it, which together covers the full trailing year
	for i, name := range seasonNames {
		prev := seasonNames[(i+3)%4]
		y := year
		if name == "WINTER" {
			y--
		}
		page, _, err := s.api.SeasonPage(ctx, prev, y, 1, "RELEASING")
		if err != nil {
			return err
		}
		media = append(media, page...)
	}

	if season == "FALL" {
		lookahead, err := s.sweep(ctx, "WINTER", year+1, "")
		if err != nil {
			return err
		}
		media = append(media, lookahead...)
	}

	media = dedupeAiring(media)
	sort.SliceStable(media, func(a, b int) bool {
		return media[a].AiringSchedule.Nodes[0].AiringAt < media[b].AiringSchedule.Nodes[0].AiringAt
	})
	for i := range media {
		node := media[i].AiringSchedule.Nodes[0]
		media[i].Unaired = node.AiringAt > now.Unix() && node.Episode <= 1
	}

	if len(media) == 0 {
		return errors.New("seasonal schedule resolved empty, refusing to persist")
	}
	if _, err := s.store.SaveSeasonal(domain.CategorySub, media); err != nil {
		return err
	}
	s.logger.Info().Int("count", len(media)).Msg("saved seasonal sub schedule")
	return nil
}

func (s *Seasonal) sweep(ctx context.Context, season string, year int, status string) ([]domain.Media, error) {
	var out []domain.Media
	for page := 1; page <= maxSeasonPages; page++ {
		batch, hasNext, err := s.api.SeasonPage(ctx, season, year, page, status)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if !hasNext {
			break
		}
	}
	return out, nil
}

// dedupeAiring keeps the first occurrence per media id, dropping records
// without a usable next-airing node.
func dedupeAiring(media []domain.Media) []domain.Media {
	seen := map[int]bool{}
	out := media[:0]
	for _, m := range media {
		if m.AiringSchedule == nil || len(m.AiringSchedule.Nodes) == 0 || m.AiringSchedule.Nodes[0].AiringAt == 0 {
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}
