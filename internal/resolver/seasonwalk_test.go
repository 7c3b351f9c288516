package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"anischedule/internal/anilist"
	"anischedule/internal/domain"
)

type fakeMeta struct {
	mu      sync.Mutex
	calls   []string
	byID    map[int]*domain.Media
	byMAL   map[int]*domain.Media
	results map[string]*domain.Media
}

func (f *fakeMeta) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeMeta) SearchCompound(_ context.Context, variants []anilist.TitleVariant) ([]anilist.KeyedMedia, error) {
	f.record("search")
	seen := map[string]bool{}
	var out []anilist.KeyedMedia
	for _, v := range variants {
		if seen[v.Key] {
			continue
		}
		if m, ok := f.results[v.Key]; ok {
			seen[v.Key] = true
			out = append(out, anilist.KeyedMedia{Key: v.Key, Media: m})
		}
	}
	return out, nil
}

func (f *fakeMeta) ByID(_ context.Context, id int) (*domain.Media, error) {
	f.record("byID")
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return nil, anilist.ErrNotFound
}

func (f *fakeMeta) ByMALID(_ context.Context, idMal int) (*domain.Media, error) {
	f.record("byMAL")
	if m, ok := f.byMAL[idMal]; ok {
		return m, nil
	}
	return nil, anilist.ErrNotFound
}

// seasonChain builds three 12-episode TV seasons linked by prequel/sequel
// edges and returns them alongside a fake backend that can fetch them.
func seasonChain() (*domain.Media, *domain.Media, *domain.Media, *fakeMeta) {
	edge := func(relType string, id int) domain.RelationEdge {
		return domain.RelationEdge{
			RelationType: relType,
			Node:         domain.RelationNode{ID: id, Format: "TV"},
		}
	}
	s1 := &domain.Media{ID: 1, Title: domain.MediaTitle{English: "Show"}, Format: "TV", Episodes: 12,
		Relations: &domain.Relations{Edges: []domain.RelationEdge{edge("SEQUEL", 2)}}}
	s2 := &domain.Media{ID: 2, Title: domain.MediaTitle{English: "Show Season 2"}, Format: "TV", Episodes: 12,
		Relations: &domain.Relations{Edges: []domain.RelationEdge{edge("PREQUEL", 1), edge("SEQUEL", 3)}}}
	s3 := &domain.Media{ID: 3, Title: domain.MediaTitle{English: "Show Season 3"}, Format: "TV", Episodes: 12,
		Relations: &domain.Relations{Edges: []domain.RelationEdge{edge("PREQUEL", 2)}}}
	meta := &fakeMeta{byID: map[int]*domain.Media{1: s1, 2: s2, 3: s3}}
	return s1, s2, s3, meta
}

func TestResolveSeasonWalksForward(t *testing.T) {
	s1, _, _, meta := seasonChain()
	r := New(meta, nil, 0, zerolog.Nop())

	res, err := r.resolveSeason(context.Background(), seasonWalk{media: s1, episode: 30})
	if err != nil {
		t.Fatalf("resolveSeason: %v", err)
	}
	if res.Failed {
		t.Fatalf("walk should land, got failed result %+v", res)
	}
	if res.RootMedia == nil || res.RootMedia.ID != 3 {
		t.Fatalf("episode 30 should land in season 3, got %+v", res.RootMedia)
	}
	if res.Episode != 6 || res.Offset != 24 {
		t.Fatalf("expected episode 6 with offset 24, got episode %d offset %d", res.Episode, res.Offset)
	}
}

func TestResolveSeasonWalksBackward(t *testing.T) {
	_, _, s3, meta := seasonChain()
	r := New(meta, nil, 0, zerolog.Nop())

	res, err := r.resolveSeason(context.Background(), seasonWalk{media: s3, episode: 30})
	if err != nil {
		t.Fatalf("resolveSeason: %v", err)
	}
	if res.Failed {
		t.Fatalf("walk should land, got failed result %+v", res)
	}
	// prequel hops accumulate offsets but keep the starting record as root
	if res.RootMedia == nil || res.RootMedia.ID != 3 {
		t.Fatalf("backward walk keeps the start as root, got %+v", res.RootMedia)
	}
	if res.Episode != 6 || res.Offset != 24 {
		t.Fatalf("expected episode 6 with offset 24, got episode %d offset %d", res.Episode, res.Offset)
	}
}

func TestResolveSeasonExhaustionFails(t *testing.T) {
	lone := &domain.Media{ID: 9, Episodes: 12}
	meta := &fakeMeta{byID: map[int]*domain.Media{9: lone}}
	r := New(meta, nil, 0, zerolog.Nop())

	res, err := r.resolveSeason(context.Background(), seasonWalk{media: lone, episode: 30})
	if err != nil {
		t.Fatalf("resolveSeason: %v", err)
	}
	if !res.Failed {
		t.Fatalf("walk without edges must fail")
	}
	if res.Episode != 30 || res.Offset != 0 {
		t.Fatalf("failed walk keeps the partial numbers, got episode %d offset %d", res.Episode, res.Offset)
	}
}

func TestResolveSeasonCycleGuard(t *testing.T) {
	edgeTo := func(relType string, id int) domain.RelationEdge {
		return domain.RelationEdge{RelationType: relType, Node: domain.RelationNode{ID: id, Format: "TV"}}
	}
	a := &domain.Media{ID: 1, Episodes: 12, Relations: &domain.Relations{Edges: []domain.RelationEdge{edgeTo("SEQUEL", 2)}}}
	b := &domain.Media{ID: 2, Episodes: 12, Relations: &domain.Relations{Edges: []domain.RelationEdge{edgeTo("SEQUEL", 1)}}}
	meta := &fakeMeta{byID: map[int]*domain.Media{1: a, 2: b}}
	r := New(meta, nil, 0, zerolog.Nop())

	res, err := r.resolveSeason(context.Background(), seasonWalk{media: a, episode: 50})
	if err != nil {
		t.Fatalf("resolveSeason: %v", err)
	}
	if !res.Failed {
		t.Fatalf("cyclic relation graph must fail, got %+v", res)
	}
}

func TestResolveSeasonForceMarchesToRoot(t *testing.T) {
	_, _, s3, meta := seasonChain()
	r := New(meta, nil, 0, zerolog.Nop())

	res, err := r.resolveSeason(context.Background(), seasonWalk{media: s3, force: true})
	if err != nil {
		t.Fatalf("resolveSeason: %v", err)
	}
	if res.Media == nil || res.Media.ID != 1 {
		t.Fatalf("forced walk should end at the first season, got %+v", res.Media)
	}
}

func TestFindEdgeSequelRetriesWithOVA(t *testing.T) {
	m := &domain.Media{ID: 1, Relations: &domain.Relations{Edges: []domain.RelationEdge{
		{RelationType: "SEQUEL", Node: domain.RelationNode{ID: 5, Format: "OVA"}},
	}}}
	if got := findEdge(m, "SEQUEL", tvFormats, false); got == nil || got.ID != 5 {
		t.Fatalf("sequel lookup should retry including OVA nodes, got %+v", got)
	}
	if got := findEdge(m, "PREQUEL", tvFormats, false); got != nil {
		t.Fatalf("prequel lookup must not pick up OVA sequels, got %+v", got)
	}
}
