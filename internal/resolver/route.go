package resolver

import (
	"context"
	"errors"
	"strconv"

	"anischedule/internal/anilist"
	"anischedule/internal/animeschedule"
	"anischedule/internal/domain"
	"anischedule/internal/parser"
)

// ResolveRoute resolves a timetable entry's route to a canonical record.
// The primary path answers from the pre-warmed cache and, when the slug
// carries an episode or season tag, corrects the match through the season
// walk. Failing that, the fallback chain runs: first the source-provided
// alternate titles, then a direct-ID lookup via the MAL URL on the route's
// canonical page. An unresolved route is an outcome, not an error; the
// caller keeps the entry and flags it.
func (r *Resolver) ResolveRoute(ctx context.Context, entry domain.TimetableEntry) (*domain.Media, domain.MatchOutcome, error) {
	p := parser.Parse(entry.Route)
	if p.Title == "" {
		return nil, domain.MatchUnresolved, nil
	}

	primary, err := r.resolveOne(ctx, p)
	if err != nil {
		return nil, domain.MatchUnresolved, err
	}
	if primary.Media != nil && primary.Outcome == domain.MatchConfirmed && !primary.Failed {
		return primary.Media, domain.MatchConfirmed, nil
	}

	// fallback (a): the timetable row carries its own title spellings
	if alt, err := r.resolveAlternates(ctx, entry); err != nil {
		return nil, domain.MatchUnresolved, err
	} else if alt != nil {
		r.cache.Confirm(p.CacheKey(), alt)
		return alt, domain.MatchConfirmed, nil
	}

	// fallback (b): scrape the canonical page for a MAL id and fetch it
	direct, err := r.resolveByExternalID(ctx, entry.Route)
	if err != nil {
		return nil, domain.MatchUnresolved, err
	}
	if direct != nil {
		r.logger.Info().Str("route", entry.Route).Int("id", direct.ID).Msg("resolved route via external id")
		r.cache.Confirm(p.CacheKey(), direct)
		return direct, domain.MatchConfirmed, nil
	}

	if primary.Media != nil {
		// keep the low-confidence match rather than dropping the route
		return primary.Media, domain.MatchNeedsVerification, nil
	}
	return nil, domain.MatchUnresolved, nil
}

func (r *Resolver) resolveAlternates(ctx context.Context, entry domain.TimetableEntry) (*domain.Media, error) {
	var names []string
	for _, name := range []string{entry.Romaji, entry.English, entry.Title, entry.Native} {
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	parsed, err := r.FindAndCacheTitles(ctx, names)
	if err != nil {
		return nil, err
	}
	for _, p := range parsed {
		if p.Title == "" {
			continue
		}
		if media, _ := r.cache.Get(p.CacheKey()); media != nil && VerifyMatch(media, p.Title) {
			r.logger.Debug().Str("route", entry.Route).Str("title", p.Title).Msg("resolved via alternative title")
			return media, nil
		}
	}
	return nil, nil
}

func (r *Resolver) resolveByExternalID(ctx context.Context, route string) (*domain.Media, error) {
	if r.details == nil {
		return nil, nil
	}
	detail, err := r.details.Detail(ctx, route)
	if err != nil {
		if errors.Is(err, animeschedule.ErrRouteNotFound) {
			return nil, nil
		}
		return nil, err
	}
	m := reMalURL.FindStringSubmatch(detail.Websites.Mal)
	if m == nil {
		return nil, nil
	}
	idMal, _ := strconv.Atoi(m[1])
	media, err := r.meta.ByMALID(ctx, idMal)
	if err != nil {
		if errors.Is(err, anilist.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return media, nil
}
