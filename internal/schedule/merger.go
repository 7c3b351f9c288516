// Package schedule pulls timetable snapshots across a rolling week window,
// reconciles them against the persisted schedule and produces the working set
// the feed updater consumes. Reconciliation is where the upstream feed's
// contradictions get resolved: delays, indefinite-delay inference, erroneous
// additions, partial-dub conclusions.
package schedule

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"anischedule/internal/animeschedule"
	"anischedule/internal/changelog"
	"anischedule/internal/config"
	"anischedule/internal/domain"
	"anischedule/internal/maldubs"
	"anischedule/internal/store"
	"anischedule/internal/timeutil"
)

// TimetableAPI is the slice of the timetable client the merger needs.
type TimetableAPI interface {
	Timetables(ctx context.Context, year, week int) ([]domain.TimetableEntry, error)
	PreviousWeek(ctx context.Context, now time.Time) ([]domain.TimetableEntry, error)
	Detail(ctx context.Context, route string) (*animeschedule.RouteDetail, error)
}

// RouteResolver resolves timetable rows to canonical media records.
// FindAndCacheTitles pre-warms the resolution cache for a whole batch of
// route slugs so the per-entry lookups answer from one compound search.
type RouteResolver interface {
	FindAndCacheTitles(ctx context.Context, names []string) ([]domain.ParsedTitle, error)
	ResolveRoute(ctx context.Context, entry domain.TimetableEntry) (*domain.Media, domain.MatchOutcome, error)
}

// DubList fetches the external dub-availability list.
type DubList interface {
	Fetch(ctx context.Context) (*maldubs.List, error)
}

type Merger struct {
	source   TimetableAPI
	resolver RouteResolver
	dubs     DubList
	store    *store.Store
	changes  *changelog.Log
	cfg      config.Heuristics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewMerger(source TimetableAPI, resolver RouteResolver, dubs DubList, st *store.Store, changes *changelog.Log, cfg config.Heuristics, logger zerolog.Logger) *Merger {
	return &Merger{
		source:   source,
		resolver: resolver,
		dubs:     dubs,
		store:    st,
		changes:  changes,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run fetches, reconciles, resolves and persists the dub schedule.
func (m *Merger) Run(ctx context.Context) error {
	now := m.now()
	cat := domain.CategoryDub

	old, err := m.store.LoadSchedule(cat)
	if err != nil {
		return err
	}

	m.logger.Info().Msg("getting dub airing schedule")
	fresh, err := m.fetchWindow(ctx, now)
	if err != nil {
		return err
	}

	working, err := m.reconcile(ctx, cat, old, fresh, now)
	if err != nil {
		return err
	}

	// the api sometimes includes raw airType rows in the dub timetables
	filtered := working[:0]
	for _, e := range working {
		if e.AirType == "" || e.AirType == string(cat) {
			filtered = append(filtered, e)
		}
	}
	working = filtered
	sort.SliceStable(working, func(a, b int) bool {
		return strings.ToLower(working[a].Title) < strings.ToLower(working[b].Title)
	})
	m.logger.Info().Int("count", len(working)).Msg("retrieved airing series")

	working, err = m.mergeOverrides(cat, working)
	if err != nil {
		return err
	}

	for i := range working {
		normalizeDelays(&working[i], now)
	}

	if err := m.resolveAll(ctx, cat, working, now); err != nil {
		return err
	}
	m.carryForward(old, working, now)

	working, err = m.filterDubAvailability(ctx, cat, working)
	if err != nil {
		return err
	}

	resolved := 0
	for i := range working {
		if working[i].Media != nil {
			resolved++
		}
	}
	if resolved != len(working) {
		m.logger.Error().
			Int("resolved", resolved).
			Int("total", len(working)).
			Msg("resolved count does not match the timetable count, probable bug")
	}

	if _, err := m.store.SaveSchedule(cat, working); err != nil {
		return err
	}
	m.logger.Info().Int("count", len(working)).Msg("saved dub schedule")
	return nil
}

// fetchWindow walks the rolling week window sequentially, de-duplicating rows
// by route with the earliest week winning. A 404 week contributes nothing.
func (m *Merger) fetchWindow(ctx context.Context, now time.Time) ([]domain.TimetableEntry, error) {
	year, week := timeutil.WeekNumber(now)
	endYear, endWeek := year, week
	for i := 0; i < m.cfg.FetchWindowWeeks; i++ {
		endWeek++
		if endWeek > timeutil.WeeksInYear(endYear) {
			endWeek = 1
			endYear++
		}
	}

	var out []domain.TimetableEntry
	seen := map[string]bool{}
	for y, w := year, week; y < endYear || (y == endYear && w <= endWeek); {
		m.logger.Info().Int("year", y).Int("week", w).Msg("fetching dub timetables")
		rows, err := m.source.Timetables(ctx, y, w)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if !seen[row.Route] {
				seen[row.Route] = true
				out = append(out, row)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.InterPageDelay):
		}
		w++
		if w > timeutil.WeeksInYear(y) {
			w = 1
			y++
		}
	}
	return out, nil
}

// mergeOverrides folds in the manually maintained entries for series the
// upstream timetable does not cover, then prunes any override whose tracked
// episode count is exhausted.
func (m *Merger) mergeOverrides(cat domain.Category, working domain.Schedule) (domain.Schedule, error) {
	overrides, err := m.store.LoadOverrides(cat)
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return working, nil
	}

	kept := overrides[:0]
	for _, o := range overrides {
		if o.Episodes > 0 && o.EpisodeNumber >= o.Episodes {
			m.changes.Addf("%s The custom entry %s has aired its final episode and was retired", cat.Tag(), o.DisplayTitle())
			continue
		}
		kept = append(kept, o)
		if working.Find(o.Route) == nil {
			working = append(working, o)
		}
	}
	if len(kept) != len(overrides) {
		if _, err := m.store.SaveOverrides(cat, kept); err != nil {
			return nil, err
		}
	}
	return working, nil
}

// resolveAll resolves every surviving route. Unresolved routes are retained
// and flagged loudly; a future run may resolve them once upstream improves.
func (m *Merger) resolveAll(ctx context.Context, cat domain.Category, working domain.Schedule, now time.Time) error {
	routes := make([]string, 0, len(working))
	for i := range working {
		routes = append(routes, working[i].Route)
	}
	if _, err := m.resolver.FindAndCacheTitles(ctx, routes); err != nil {
		return err
	}

	for i := range working {
		e := &working[i]
		media, outcome, err := m.resolver.ResolveRoute(ctx, e.TimetableEntry)
		if err != nil {
			return err
		}
		if outcome == domain.MatchUnresolved || media == nil {
			e.Unresolved = true
			e.Media = nil
			m.changes.Addf("%s Failed to resolve the series %s, keeping it in the schedule for review", cat.Tag(), e.DisplayTitle())
			continue
		}
		e.Unresolved = false
		e.Media = &domain.ResolvedMedia{
			Media:  projectMedia(media, e, now),
			Failed: outcome == domain.MatchNeedsVerification,
		}
	}
	return nil
}

// projectMedia copies the canonical record and replaces its airing schedule
// with the batch-range projection covering every episode this run considers
// aired or airing for the entry.
func projectMedia(src *domain.Media, e *domain.ScheduleEntry, now time.Time) *domain.Media {
	media := *src

	predicted := e.EpisodeNumber
	delayOver := e.DelayedUntil == nil || e.DelayedUntil.Before(now)
	if e.EpisodeDate.Before(now) && delayOver && (e.Episodes == 0 || e.EpisodeNumber < e.Episodes) {
		predicted++
	}
	start := e.SubtractedEpisodeNumber
	if start == 0 {
		start = predicted
	}

	anchor := e.EpisodeDate
	if !delayOver {
		anchor = *e.DelayedUntil
	}
	// a malformed row can carry a subtracted number past the prediction;
	// the projection is then empty
	var nodes []domain.AiringNode
	for ep := start; ep <= predicted; ep++ {
		weeks := 0
		if e.EpisodeNumber < ep {
			weeks = 1
		}
		nodes = append(nodes, domain.AiringNode{
			Episode:  ep,
			AiringAt: timeutil.AdvanceIfPast(anchor, now, weeks, false).Unix(),
		})
	}
	media.AiringSchedule = &domain.AiringSchedule{Nodes: nodes}
	return &media
}

// carryForward preserves verification state and addedAt across runs and
// auto-verifies entries that survived the full verification window.
func (m *Merger) carryForward(old, working domain.Schedule, now time.Time) {
	for i := range working {
		e := &working[i]
		match := old.Find(e.Route)
		if match != nil {
			e.Verified = e.Verified || match.Verified
			if match.AddedAt != nil {
				e.AddedAt = match.AddedAt
			}
		}
		if e.AddedAt == nil {
			e.AddedAt = defaultAddedAt(e, now)
		}
		if match != nil && !e.Verified && !now.Before(e.AddedAt.Add(m.cfg.VerificationWindow)) {
			e.Verified = true
			m.logger.Info().
				Str("title", e.DisplayTitle()).
				Msg("verified series after two weeks on the timetables; a removal before the final episode is now a bug or an indefinite delay")
		}
	}
}

func defaultAddedAt(e *domain.ScheduleEntry, now time.Time) *time.Time {
	t := timeutil.Truncate(now)
	if e.Unaired {
		t = timeutil.Truncate(e.EpisodeDate)
	}
	return &t
}

// filterDubAvailability drops entries whose resolved record has no planned or
// in-progress dub per the external list. This should not normally fire; when
// it does the upstream timetable shipped noise.
func (m *Merger) filterDubAvailability(ctx context.Context, cat domain.Category, working domain.Schedule) (domain.Schedule, error) {
	list, err := m.dubs.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	kept := working[:0]
	for _, e := range working {
		idMal := 0
		if e.Media != nil && e.Media.Media != nil {
			idMal = e.Media.Media.IDMal
		}
		if idMal != 0 && !list.IsDub(idMal) {
			m.logger.Error().Str("title", e.DisplayTitle()).Int("idMal", idMal).Msg("series has no planned dub, excluding upstream noise")
			m.changes.Addf("%s Excluded %s as no dub is planned or tracked for it", cat.Tag(), e.DisplayTitle())
			continue
		}
		kept = append(kept, e)
	}
	return kept, nil
}

// normalizeDelays re-anchors the delay window timestamps onto the episode
// date's clock time and derives the unaired flag. The upstream delay fields
// frequently carry a bare-midnight time that breaks ordering comparisons.
func normalizeDelays(e *domain.ScheduleEntry, now time.Time) {
	e.DelayedFrom = fixDelay(e.DelayedFrom, e.EpisodeDate)
	e.DelayedUntil = fixDelay(e.DelayedUntil, e.EpisodeDate)
	atStart := e.EpisodeNumber <= 1 || (e.SubtractedEpisodeNumber == 1 && e.EpisodeNumber > 1)
	e.Unaired = atStart && e.EpisodeDate.After(now)
}

func fixDelay(t *time.Time, anchor time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u, a := t.UTC(), anchor.UTC()
	fixed := time.Date(u.Year(), u.Month(), u.Day(), a.Hour(), a.Minute(), a.Second(), 0, time.UTC)
	return &fixed
}
