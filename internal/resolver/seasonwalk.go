package resolver

import (
	"context"
	"errors"

	"anischedule/internal/domain"
)

// maxSeasonHops bounds the relation-graph walk; upstream relation data is
// not guaranteed acyclic.
const maxSeasonHops = 20

// SeasonResolution is the result of mapping an absolute episode number back
// to a season-relative one by walking prequel/sequel relations. Failed marks
// a walk that ran out of edges or hops before the episode landed; the partial
// offset is still returned and callers must treat it as low confidence, not
// as an error.
type SeasonResolution struct {
	Media     *domain.Media
	RootMedia *domain.Media
	Episode   int
	Offset    int
	Failed    bool
}

type seasonWalk struct {
	media     *domain.Media
	episode   int
	offset    int
	rootMedia *domain.Media
	force     bool
	// increment is tri-state: unset means "decide from the first edge".
	increment    bool
	incrementSet bool
}

// findEdge returns the first relation edge of the wanted type whose node is
// a TV-style format. Sequel lookups retry once including OVA nodes; that
// mapping is hit-or-miss upstream.
func findEdge(media *domain.Media, relType string, formats []string, retried bool) *domain.RelationNode {
	if media == nil || media.Relations == nil {
		return nil
	}
	for i := range media.Relations.Edges {
		edge := &media.Relations.Edges[i]
		if edge.RelationType != relType {
			continue
		}
		for _, f := range formats {
			if edge.Node.Format == f {
				return &edge.Node
			}
		}
	}
	if !retried && relType == "SEQUEL" {
		return findEdge(media, relType, []string{"TV", "TV_SHORT", "OVA"}, true)
	}
	return nil
}

var tvFormats = []string{"TV", "TV_SHORT"}

func (r *Resolver) resolveSeason(ctx context.Context, w seasonWalk) (SeasonResolution, error) {
	if w.media == nil || (w.episode == 0 && !w.force) {
		return SeasonResolution{}, errors.New("no episode or media for season resolve")
	}
	if w.rootMedia == nil {
		w.rootMedia = w.media
	}
	visited := map[int]bool{}
	for hops := 0; hops < maxSeasonHops; hops++ {
		rootHighest := w.rootMedia.MaxEpisode()

		var prequel, sequel *domain.RelationNode
		if !w.incrementSet || !w.increment {
			prequel = findEdge(w.media, "PREQUEL", tvFormats, false)
		}
		if prequel == nil && (!w.incrementSet || w.increment) {
			sequel = findEdge(w.media, "SEQUEL", tvFormats, false)
		}
		edge := prequel
		if edge == nil {
			edge = sequel
		}
		if !w.incrementSet {
			w.increment = prequel == nil
			w.incrementSet = true
		}

		if edge == nil || visited[edge.ID] {
			res := SeasonResolution{
				Media:     w.media,
				RootMedia: w.rootMedia,
				Episode:   w.episode - w.offset,
				Offset:    w.offset,
				Failed:    true,
			}
			if !w.force {
				r.logger.Debug().
					Int("media", mediaID(w.media)).
					Int("episode", w.episode).
					Int("offset", w.offset).
					Msg("season walk exhausted relation graph")
			}
			return res, nil
		}
		visited[edge.ID] = true

		next, err := r.meta.ByID(ctx, edge.ID)
		if err != nil {
			return SeasonResolution{}, err
		}
		w.media = next

		highest := w.media.MaxEpisode()
		diff := w.episode - (highest + w.offset)
		if w.increment {
			w.offset += rootHighest
			w.rootMedia = w.media
		} else {
			w.offset += highest
		}

		// force marches to the end of the graph, no landing checks
		if !w.force && diff <= rootHighest {
			return SeasonResolution{
				Media:     w.media,
				RootMedia: w.rootMedia,
				Episode:   w.episode - w.offset,
				Offset:    w.offset,
			}, nil
		}
	}
	return SeasonResolution{
		Media:     w.media,
		RootMedia: w.rootMedia,
		Episode:   w.episode - w.offset,
		Offset:    w.offset,
		Failed:    true,
	}, nil
}
