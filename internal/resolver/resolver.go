// Package resolver maps loosely formatted route and file titles to canonical
// media records. Lookups are batched into compound searches, memoized in a
// run-lifetime cache, verified by a fuzzy containment gate and, when
// verification fails, walked through a chain of fallbacks before a route is
// declared unresolved.
package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"anischedule/internal/anilist"
	"anischedule/internal/animeschedule"
	"anischedule/internal/domain"
	"anischedule/internal/parser"
)

// MetadataAPI is the slice of the metadata client the resolver needs.
type MetadataAPI interface {
	SearchCompound(ctx context.Context, variants []anilist.TitleVariant) ([]anilist.KeyedMedia, error)
	ByID(ctx context.Context, id int) (*domain.Media, error)
	ByMALID(ctx context.Context, idMal int) (*domain.Media, error)
}

// RouteDetailAPI provides the per-route canonical page used for the
// direct-ID fallback.
type RouteDetailAPI interface {
	Detail(ctx context.Context, route string) (*animeschedule.RouteDetail, error)
}

var (
	reMalURL       = regexp.MustCompile(`myanimelist\.net/anime/(\d+)`)
	reSeasonTokens = regexp.MustCompile(`S\d+(E\d+)?`)
)

type Resolver struct {
	meta      MetadataAPI
	details   RouteDetailAPI
	cache     *Cache
	chunkSize int
	logger    zerolog.Logger
}

func New(meta MetadataAPI, details RouteDetailAPI, chunkSize int, logger zerolog.Logger) *Resolver {
	if chunkSize <= 0 {
		chunkSize = 60
	}
	return &Resolver{
		meta:      meta,
		details:   details,
		cache:     NewCache(logger),
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Cache exposes the run-lifetime cache, mainly for tests.
func (r *Resolver) Cache() *Cache { return r.cache }

// FindAndCacheTitles parses every name, batches the unresolved keys into
// compound searches and fills the cache. It returns the parse results in
// input order; resolution outcomes live in the cache.
func (r *Resolver) FindAndCacheTitles(ctx context.Context, names []string) ([]domain.ParsedTitle, error) {
	parsed := parser.ParseAll(names)

	uniq := make([]domain.ParsedTitle, 0, len(parsed))
	seen := map[string]bool{}
	for _, p := range parsed {
		key := p.CacheKey()
		if p.Title == "" || seen[key] {
			continue
		}
		if _, done := r.cache.Get(key); done {
			continue
		}
		seen[key] = true
		uniq = append(uniq, p)
	}
	if len(uniq) == 0 {
		return parsed, nil
	}

	variants := buildVariants(uniq)
	r.logger.Info().Int("titles", len(variants)).Msg("finding titles via compound search")

	for start := 0; start < len(variants); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(variants) {
			end = len(variants)
		}
		results, err := r.meta.SearchCompound(ctx, variants[start:end])
		if err != nil {
			return nil, err
		}
		resolved := map[string]bool{}
		for _, km := range results {
			r.cache.Put(km.Key, km.Media)
			resolved[km.Key] = true
		}
		// record explicit misses so the same keys aren't re-queried
		for _, v := range variants[start:end] {
			if !resolved[v.Key] {
				if _, done := r.cache.Get(v.Key); !done {
					r.cache.Put(v.Key, nil)
				}
			}
		}
	}
	return parsed, nil
}

// buildVariants expands each parsed title into its alternative spellings,
// with a year-scoped duplicate when a year was parsed and an adult-flagged
// duplicate of the last variant per input.
func buildVariants(parsed []domain.ParsedTitle) []anilist.TitleVariant {
	var out []anilist.TitleVariant
	for _, p := range parsed {
		key := p.CacheKey()
		var last anilist.TitleVariant
		for _, alt := range AlternativeTitles(p.Title) {
			last = anilist.TitleVariant{Key: key, Title: alt}
			out = append(out, last)
			if p.Year > 0 {
				last = anilist.TitleVariant{Key: key, Title: alt, Year: p.Year}
				out = append(out, last)
			}
		}
		if last.Title != "" {
			last.IsAdult = true
			out = append(out, last)
		}
	}
	return out
}

// Resolution is the outcome of resolving one name.
type Resolution struct {
	Parsed  domain.ParsedTitle
	Media   *domain.Media
	Episode int
	Outcome domain.MatchOutcome
	// Failed marks a low-confidence episode-offset walk.
	Failed bool
}

// ResolveTitles resolves a batch of names to canonical records, correcting
// absolute episode numbers back to season-relative ones where the parsed
// number overflows the matched record's episode count.
func (r *Resolver) ResolveTitles(ctx context.Context, names []string) ([]Resolution, error) {
	parsed, err := r.FindAndCacheTitles(ctx, names)
	if err != nil {
		return nil, err
	}

	out := make([]Resolution, 0, len(parsed))
	for _, p := range parsed {
		res, err := r.resolveOne(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, p domain.ParsedTitle) (Resolution, error) {
	media, _ := r.cache.Get(p.CacheKey())
	res := Resolution{Parsed: p, Media: media, Episode: p.Episode}

	needsVerification := media == nil || !VerifyMatch(media, p.Title)
	if media != nil && !needsVerification {
		res.Outcome = domain.MatchConfirmed
	} else if media != nil {
		res.Outcome = domain.MatchNeedsVerification
	}

	if p.Episode == 0 {
		if media == nil {
			res.Outcome = domain.MatchUnresolved
		}
		return res, nil
	}

	offset := 0
	if needsVerification {
		// likely a horribly named sequel: retry against the root title
		r.logger.Debug().Str("title", p.Title).Msg("match unverified, refetching root media")
		rootName := strings.TrimSpace(reSeasonTokens.ReplaceAllString(p.Title, ""))
		rootParsed, err := r.FindAndCacheTitles(ctx, []string{rootName})
		if err != nil {
			return Resolution{}, err
		}
		if len(rootParsed) > 0 {
			if root, _ := r.cache.Get(rootParsed[0].CacheKey()); root != nil {
				media = root
				res.Media = root
				res.Outcome = domain.MatchNeedsVerification
				offset = -root.MaxEpisode()
			}
		}
	}
	if media == nil {
		res.Outcome = domain.MatchUnresolved
		return res, nil
	}

	maxEp := media.MaxEpisode()
	overflow := maxEp > 0 && p.Episode > maxEp
	rebased := offset != 0 && maxEp > 0 && p.Episode <= maxEp
	if !overflow && !rebased {
		return res, nil
	}

	// march to the first season so the walk accumulates a clean offset;
	// a parsed season tag means the title already picked the right season
	start := media
	if p.Season == 0 {
		prequel := findEdge(media, "PREQUEL", tvFormats, false)
		if prequel == nil && (media.Format == "OVA" || media.Format == "ONA") {
			prequel = findEdge(media, "PARENT", tvFormats, false)
		}
		if prequel != nil {
			node, err := r.meta.ByID(ctx, prequel.ID)
			if err != nil {
				return Resolution{}, err
			}
			rootRes, err := r.resolveSeason(ctx, seasonWalk{media: node, force: true, offset: offset})
			if err != nil {
				return Resolution{}, err
			}
			if rootRes.Media != nil {
				start = rootRes.Media
			}
		}
	}

	walk := seasonWalk{media: start, episode: p.Episode, offset: offset}
	if p.Season > 0 {
		walk.increment, walk.incrementSet = true, true
	}
	result, err := r.resolveSeason(ctx, walk)
	if err != nil {
		return Resolution{}, err
	}
	if result.Failed && p.Season > 0 {
		// last-ditch attempt without the forced direction
		result, err = r.resolveSeason(ctx, seasonWalk{media: start, episode: p.Episode, offset: offset})
		if err != nil {
			return Resolution{}, err
		}
	}

	res.Media = result.RootMedia
	res.Episode = result.Episode
	res.Failed = result.Failed
	if result.Failed {
		r.logger.Warn().Str("title", p.Title).Int("episode", p.Episode).Msg("failed to resolve season-relative episode")
	} else if res.Outcome != domain.MatchConfirmed {
		res.Outcome = domain.MatchNeedsVerification
	}
	return res, nil
}
