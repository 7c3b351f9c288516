package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"anischedule/internal/animeschedule"
	"anischedule/internal/changelog"
	"anischedule/internal/config"
	"anischedule/internal/domain"
	"anischedule/internal/maldubs"
	"anischedule/internal/store"
)

type fakeSource struct {
	rows    []domain.TimetableEntry
	prev    []domain.TimetableEntry
	details map[string]*animeschedule.RouteDetail
}

func (f *fakeSource) Timetables(_ context.Context, _, _ int) ([]domain.TimetableEntry, error) {
	return f.rows, nil
}

func (f *fakeSource) PreviousWeek(_ context.Context, _ time.Time) ([]domain.TimetableEntry, error) {
	return f.prev, nil
}

func (f *fakeSource) Detail(_ context.Context, route string) (*animeschedule.RouteDetail, error) {
	if d, ok := f.details[route]; ok {
		return d, nil
	}
	return nil, animeschedule.ErrRouteNotFound
}

type fakeResolver struct {
	media  map[string]*domain.Media
	primed [][]string
}

func (f *fakeResolver) FindAndCacheTitles(_ context.Context, names []string) ([]domain.ParsedTitle, error) {
	f.primed = append(f.primed, names)
	return nil, nil
}

func (f *fakeResolver) ResolveRoute(_ context.Context, entry domain.TimetableEntry) (*domain.Media, domain.MatchOutcome, error) {
	if m, ok := f.media[entry.Route]; ok {
		return m, domain.MatchConfirmed, nil
	}
	return nil, domain.MatchUnresolved, nil
}

type fakeDubs struct {
	list *maldubs.List
}

func (f *fakeDubs) Fetch(_ context.Context) (*maldubs.List, error) {
	return f.list, nil
}

func testHeuristics() config.Heuristics {
	return config.Heuristics{
		VerificationWindow:      14 * 24 * time.Hour,
		DelayedFromWindowWeeks:  4,
		IndefiniteDelayYears:    6,
		FetchWindowWeeks:        1,
		InterPageDelay:          time.Millisecond,
		CompoundChunkSize:       60,
		DSTCorrectionWindowDays: 8,
	}
}

// tuesday avoids the Monday rollover guard in absence handling.
var tuesday = time.Date(2025, time.July, 1, 15, 0, 0, 0, time.UTC)

func testMedia(id int, title string) *domain.Media {
	return &domain.Media{
		ID:       id,
		IDMal:    id + 1,
		Format:   "TV",
		Episodes: 12,
		Title:    domain.MediaTitle{UserPreferred: title},
	}
}

func newTestMerger(t *testing.T, src *fakeSource, res *fakeResolver, dubs *fakeDubs, now time.Time) (*Merger, *store.Store, *changelog.Log) {
	t.Helper()
	st := store.New(t.TempDir(), zerolog.Nop())
	changes := changelog.New(zerolog.Nop())
	m := NewMerger(src, res, dubs, st, changes, testHeuristics(), zerolog.Nop())
	m.now = func() time.Time { return now }
	return m, st, changes
}

func timetableRow(route string, episode int, date time.Time) domain.TimetableEntry {
	return domain.TimetableEntry{
		Route:         route,
		Title:         route,
		AirType:       "dub",
		EpisodeNumber: episode,
		Episodes:      12,
		EpisodeDate:   date,
	}
}

func TestMergerFirstSighting(t *testing.T) {
	src := &fakeSource{rows: []domain.TimetableEntry{timetableRow("show-x", 5, tuesday.Add(-24*time.Hour))}}
	res := &fakeResolver{media: map[string]*domain.Media{"show-x": testMedia(42, "Show X")}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43}}}
	m, st, _ := newTestMerger(t, src, res, dubs, tuesday)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	require.Len(t, sched, 1)
	e := sched.Find("show-x")
	require.NotNil(t, e)
	require.False(t, e.Verified, "a first sighting starts unverified")
	require.NotNil(t, e.AddedAt)
	require.Equal(t, 42, e.MediaID())
	require.NotNil(t, e.Media.Media.AiringSchedule)
	require.NotEmpty(t, e.Media.Media.AiringSchedule.Nodes)
}

func TestMergerPrimesResolutionForAllRoutes(t *testing.T) {
	src := &fakeSource{rows: []domain.TimetableEntry{
		timetableRow("show-x", 5, tuesday.Add(-24*time.Hour)),
		timetableRow("show-y", 2, tuesday.Add(-48*time.Hour)),
	}}
	res := &fakeResolver{media: map[string]*domain.Media{
		"show-x": testMedia(42, "Show X"),
		"show-y": testMedia(50, "Show Y"),
	}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43, 51}}}
	m, _, _ := newTestMerger(t, src, res, dubs, tuesday)

	require.NoError(t, m.Run(context.Background()))

	// one compound batch covering the whole working set, ahead of the
	// per-route lookups
	require.Len(t, res.primed, 1)
	require.ElementsMatch(t, []string{"show-x", "show-y"}, res.primed[0])
}

func TestMergerToleratesSubtractedNumberPastPrediction(t *testing.T) {
	// upstream occasionally emits a batch marker beyond the current episode;
	// the projection must come out empty instead of blowing up
	row := timetableRow("clumped", 3, tuesday.Add(48*time.Hour))
	row.SubtractedEpisodeNumber = 10
	src := &fakeSource{rows: []domain.TimetableEntry{row}}
	res := &fakeResolver{media: map[string]*domain.Media{"clumped": testMedia(42, "Clumped Show")}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43}}}
	m, st, _ := newTestMerger(t, src, res, dubs, tuesday)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	e := sched.Find("clumped")
	require.NotNil(t, e)
	require.Equal(t, 42, e.MediaID())
	require.NotNil(t, e.Media.Media.AiringSchedule)
	require.Empty(t, e.Media.Media.AiringSchedule.Nodes)
}

func TestMergerInfersIndefiniteDelay(t *testing.T) {
	src := &fakeSource{}
	res := &fakeResolver{media: map[string]*domain.Media{"gone": testMedia(42, "Gone Show")}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43}}}
	m, st, changes := newTestMerger(t, src, res, dubs, tuesday)

	added := tuesday.Add(-30 * 24 * time.Hour)
	old := domain.Schedule{{
		TimetableEntry: timetableRow("gone", 3, tuesday.Add(-24*time.Hour)),
		Verified:       true,
		AddedAt:        &added,
		Media:          &domain.ResolvedMedia{Media: testMedia(42, "Gone Show")},
	}}
	_, err := st.SaveSchedule(domain.CategoryDub, old)
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	e := sched.Find("gone")
	require.NotNil(t, e, "a verified series must never be dropped silently")
	require.True(t, e.DelayedIndefinitely)
	require.True(t, e.Verified, "verification is monotonic")
	require.NotNil(t, e.DelayedUntil)
	require.Equal(t, tuesday.Year()+6, e.DelayedUntil.Year())
	require.NotEmpty(t, changes.Lines())
}

func TestMergerPurgesFalsePositive(t *testing.T) {
	src := &fakeSource{}
	res := &fakeResolver{}
	dubs := &fakeDubs{list: &maldubs.List{}}
	m, st, changes := newTestMerger(t, src, res, dubs, tuesday)

	added := tuesday.Add(-3 * 24 * time.Hour)
	old := domain.Schedule{{
		TimetableEntry: timetableRow("mistake", 4, tuesday.Add(-24*time.Hour)),
		AddedAt:        &added,
		Media:          &domain.ResolvedMedia{Media: testMedia(42, "Mistake Show")},
	}}
	_, err := st.SaveSchedule(domain.CategoryDub, old)
	require.NoError(t, err)
	_, err = st.SaveFeed(domain.CategoryDub, domain.Feed{
		{ID: 42, Episode: domain.FeedEpisode{Aired: 1, AiredAt: tuesday.Add(-14 * 24 * time.Hour)}},
		{ID: 42, Episode: domain.FeedEpisode{Aired: 2, AiredAt: tuesday.Add(-7 * 24 * time.Hour)}},
	})
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	require.Nil(t, sched.Find("mistake"))

	feed, err := st.LoadFeed(domain.CategoryDub)
	require.NoError(t, err)
	require.Empty(t, feed, "all feed episodes for the erroneous series are purged")
	require.NotEmpty(t, changes.Lines())
}

func TestMergerMondayRolloverSuppressesPurge(t *testing.T) {
	monday := tuesday.Add(-24 * time.Hour)
	src := &fakeSource{}
	res := &fakeResolver{}
	dubs := &fakeDubs{list: &maldubs.List{}}
	m, st, _ := newTestMerger(t, src, res, dubs, monday)

	added := monday.Add(-3 * 24 * time.Hour)
	old := domain.Schedule{{
		TimetableEntry: timetableRow("mistake", 4, monday.Add(-24*time.Hour)),
		AddedAt:        &added,
		Media:          &domain.ResolvedMedia{Media: testMedia(42, "Mistake Show")},
	}}
	_, err := st.SaveSchedule(domain.CategoryDub, old)
	require.NoError(t, err)
	_, err = st.SaveFeed(domain.CategoryDub, domain.Feed{
		{ID: 42, Episode: domain.FeedEpisode{Aired: 1, AiredAt: monday.Add(-7 * 24 * time.Hour)}},
	})
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	feed, err := st.LoadFeed(domain.CategoryDub)
	require.NoError(t, err)
	require.Len(t, feed, 1, "absences observed on Monday are not trusted")
}

func TestMergerRetroactiveAdditionInsteadOfPurge(t *testing.T) {
	premiered := tuesday.Add(-30 * 24 * time.Hour)
	src := &fakeSource{details: map[string]*animeschedule.RouteDetail{
		"premiered": {Route: "premiered", PremierDub: &premiered},
	}}
	res := &fakeResolver{media: map[string]*domain.Media{"premiered": testMedia(42, "Premiered Show")}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43}}}
	m, st, _ := newTestMerger(t, src, res, dubs, tuesday)

	added := tuesday.Add(-3 * 24 * time.Hour)
	old := domain.Schedule{{
		TimetableEntry: timetableRow("premiered", 4, tuesday.Add(-24*time.Hour)),
		AddedAt:        &added,
		Media:          &domain.ResolvedMedia{Media: testMedia(42, "Premiered Show")},
	}}
	_, err := st.SaveSchedule(domain.CategoryDub, old)
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	require.NotNil(t, sched.Find("premiered"), "a passed premiere turns the removal into a retroactive addition")
}

func TestMergerConcludesPartialDub(t *testing.T) {
	from := tuesday.Add(-7 * 24 * time.Hour)
	row := timetableRow("partial", 6, tuesday.Add(6*24*time.Hour))
	row.DelayedText = "This series will only receive a partial dub"
	row.DelayedFrom = &from
	src := &fakeSource{rows: []domain.TimetableEntry{row}}
	res := &fakeResolver{}
	dubs := &fakeDubs{list: &maldubs.List{}}
	m, st, changes := newTestMerger(t, src, res, dubs, tuesday)

	added := tuesday.Add(-30 * 24 * time.Hour)
	old := domain.Schedule{{
		TimetableEntry: timetableRow("partial", 6, tuesday.Add(-24*time.Hour)),
		Verified:       true,
		AddedAt:        &added,
		Media:          &domain.ResolvedMedia{Media: testMedia(42, "Partial Show")},
	}}
	_, err := st.SaveSchedule(domain.CategoryDub, old)
	require.NoError(t, err)
	_, err = st.SaveFeed(domain.CategoryDub, domain.Feed{
		{ID: 42, Episode: domain.FeedEpisode{Aired: 7, AiredAt: tuesday.Add(-24 * time.Hour)}},
		{ID: 42, Episode: domain.FeedEpisode{Aired: 6, AiredAt: tuesday.Add(-8 * 24 * time.Hour)}},
		{ID: 42, Episode: domain.FeedEpisode{Aired: 5, AiredAt: tuesday.Add(-15 * 24 * time.Hour)}},
	})
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	require.Nil(t, sched.Find("partial"), "a concluded series leaves the schedule")

	feed, err := st.LoadFeed(domain.CategoryDub)
	require.NoError(t, err)
	require.Len(t, feed, 1, "episodes at or past the conclusion point are removed")
	require.Equal(t, 5, feed[0].Episode.Aired)
	require.NotEmpty(t, changes.Lines())
}

func TestMergerMalformedDelayWindow(t *testing.T) {
	from := tuesday.Add(-7 * 24 * time.Hour)
	row := timetableRow("delayed", 6, tuesday.Add(-24*time.Hour))
	row.DelayedFrom = &from
	src := &fakeSource{rows: []domain.TimetableEntry{row}}
	res := &fakeResolver{media: map[string]*domain.Media{"delayed": testMedia(42, "Delayed Show")}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43}}}
	m, st, _ := newTestMerger(t, src, res, dubs, tuesday)

	added := tuesday.Add(-30 * 24 * time.Hour)
	old := domain.Schedule{{
		TimetableEntry: timetableRow("delayed", 6, tuesday.Add(-8*24*time.Hour)),
		Verified:       true,
		AddedAt:        &added,
		Media:          &domain.ResolvedMedia{Media: testMedia(42, "Delayed Show")},
	}}
	_, err := st.SaveSchedule(domain.CategoryDub, old)
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	e := sched.Find("delayed")
	require.NotNil(t, e)
	require.True(t, e.DelayedIndefinitely, "delayedFrom without delayedUntil is an indefinite delay")
	require.True(t, e.Verified)
}

func TestMergerAutoVerifiesAfterWindow(t *testing.T) {
	src := &fakeSource{rows: []domain.TimetableEntry{timetableRow("show-x", 5, tuesday.Add(-24*time.Hour))}}
	res := &fakeResolver{media: map[string]*domain.Media{"show-x": testMedia(42, "Show X")}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43}}}
	m, st, _ := newTestMerger(t, src, res, dubs, tuesday)

	added := tuesday.Add(-15 * 24 * time.Hour)
	old := domain.Schedule{{
		TimetableEntry: timetableRow("show-x", 4, tuesday.Add(-8*24*time.Hour)),
		AddedAt:        &added,
	}}
	_, err := st.SaveSchedule(domain.CategoryDub, old)
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	e := sched.Find("show-x")
	require.NotNil(t, e)
	require.True(t, e.Verified, "two weeks on the timetables verifies an entry")
}

func TestMergerKeepsUnresolvedRoutes(t *testing.T) {
	src := &fakeSource{rows: []domain.TimetableEntry{timetableRow("unknown", 2, tuesday.Add(-24*time.Hour))}}
	res := &fakeResolver{}
	dubs := &fakeDubs{list: &maldubs.List{}}
	m, st, changes := newTestMerger(t, src, res, dubs, tuesday)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	e := sched.Find("unknown")
	require.NotNil(t, e, "unresolved routes are retained, not dropped")
	require.True(t, e.Unresolved)
	require.Nil(t, e.Media)
	require.NotEmpty(t, changes.Lines())
}

func TestMergerExcludesSeriesWithoutDub(t *testing.T) {
	src := &fakeSource{rows: []domain.TimetableEntry{timetableRow("nodub", 2, tuesday.Add(-24*time.Hour))}}
	res := &fakeResolver{media: map[string]*domain.Media{"nodub": testMedia(42, "No Dub Show")}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{999}}}
	m, st, changes := newTestMerger(t, src, res, dubs, tuesday)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	require.Nil(t, sched.Find("nodub"))
	require.NotEmpty(t, changes.Lines())
}

func TestMergerMergesAndPrunesOverrides(t *testing.T) {
	src := &fakeSource{rows: []domain.TimetableEntry{timetableRow("show-x", 5, tuesday.Add(-24*time.Hour))}}
	res := &fakeResolver{media: map[string]*domain.Media{
		"show-x": testMedia(42, "Show X"),
		"manual": testMedia(50, "Manual Show"),
	}}
	dubs := &fakeDubs{list: &maldubs.List{Dubbed: []int{43, 51}}}
	m, st, _ := newTestMerger(t, src, res, dubs, tuesday)

	manual := timetableRow("manual", 3, tuesday.Add(-24*time.Hour))
	exhausted := timetableRow("done", 12, tuesday.Add(-24*time.Hour))
	_, err := st.SaveOverrides(domain.CategoryDub, domain.Schedule{
		{TimetableEntry: manual, Verified: true},
		{TimetableEntry: exhausted, Verified: true},
	})
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	sched, err := st.LoadSchedule(domain.CategoryDub)
	require.NoError(t, err)
	require.NotNil(t, sched.Find("manual"))

	overrides, err := st.LoadOverrides(domain.CategoryDub)
	require.NoError(t, err)
	require.Len(t, overrides, 1, "exhausted overrides are pruned")
	require.Equal(t, "manual", overrides[0].Route)
}
