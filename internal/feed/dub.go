package feed

import (
	"context"
	"time"

	"anischedule/internal/domain"
	"anischedule/internal/timeutil"
)

// longMultiHeaderRun is how wide an in-progress batch range must be before a
// weekly-slot mismatch is attributed to the batch instead of a real shift.
const longMultiHeaderRun = 2

// updateDub runs the four reconciliation phases over the feed and returns
// the superseding feed plus the number of synthesized records.
func (u *Updater) updateDub(ctx context.Context, sched domain.Schedule, feed domain.Feed, now time.Time) (domain.Feed, int, error) {
	feed = u.retractDelayed(sched, feed, now)
	feed = u.retractStale(sched, feed)
	feed = u.rebaseDates(sched, feed, now)

	fresh, err := u.synthesize(ctx, sched, feed, now)
	if err != nil {
		return nil, 0, err
	}

	merged := make(domain.Feed, 0, len(fresh)+len(feed))
	merged = append(merged, fresh...)
	merged = append(merged, feed...)
	merged = dedupe(merged)
	merged.SortAiredDesc()
	return merged, len(fresh), nil
}

// retractDelayed is phase A: a delay window covering the current episode
// with a still-future delayedUntil proves the episode was recorded
// prematurely.
func (u *Updater) retractDelayed(sched domain.Schedule, feed domain.Feed, now time.Time) domain.Feed {
	for i := range sched {
		e := &sched[i]
		id := e.MediaID()
		if id == 0 || !e.DelayCovers(now) {
			continue
		}
		kept := feed[:0]
		for _, rec := range feed {
			if rec.ID == id && rec.Episode.Aired == e.EpisodeNumber {
				u.changes.Addf("%s Removed Episode %d of %s as it has been delayed", domain.CategoryDub.Tag(), rec.Episode.Aired, e.DisplayTitle())
				continue
			}
			kept = append(kept, rec)
		}
		feed = kept
	}
	return feed
}

// retractStale is phase B: the recorded airing predates the schedule's
// corrected episode date, so the air date moved later after the fact.
func (u *Updater) retractStale(sched domain.Schedule, feed domain.Feed) domain.Feed {
	for i := range sched {
		e := &sched[i]
		id := e.MediaID()
		if id == 0 {
			continue
		}
		kept := feed[:0]
		for _, rec := range feed {
			if rec.ID == id && rec.Episode.Aired == e.EpisodeNumber && rec.Episode.AiredAt.Before(e.EpisodeDate) {
				u.changes.Addf("%s Removed Episode %d of %s due to a correction in the airing date", domain.CategoryDub.Tag(), e.EpisodeNumber, e.DisplayTitle())
				continue
			}
			kept = append(kept, rec)
		}
		feed = kept
	}
	return feed
}

// rebaseDates is phase C: when the latest recorded airing no longer sits on
// the schedule's weekly slot, every recorded episode is re-based backward
// from the corrected anchor in weekly steps. During a DST transition month a
// latest episode still inside the correction window only gets a time-of-day
// fix, since a full re-walk would over-correct a one-hour shift.
func (u *Updater) rebaseDates(sched domain.Schedule, feed domain.Feed, now time.Time) domain.Feed {
	for i := range sched {
		e := &sched[i]
		id := e.MediaID()
		if id == 0 {
			continue
		}
		idxs := feedIndices(feed, id)
		if len(idxs) == 0 {
			continue
		}
		latest := &feed[idxs[0]]
		if timeutil.DayTimeMatch(latest.Episode.AiredAt, e.EpisodeDate) {
			continue
		}
		if e.SubtractedEpisodeNumber > 0 && e.EpisodeNumber-e.SubtractedEpisodeNumber >= longMultiHeaderRun {
			// an in-progress batch run legitimately diverges from the slot
			continue
		}

		if timeutil.IsDSTTransitionMonth(now) && dstFixApplies(latest.Episode.AiredAt, now, u.cfg.DSTCorrectionWindowDays) {
			fixed := timeutil.SameDayTimeFix(latest.Episode.AiredAt, e.EpisodeDate)
			if !fixed.Equal(latest.Episode.AiredAt.UTC()) {
				u.changes.Addf("%s Modified Episode %d of %s from %s to %s", domain.CategoryDub.Tag(), latest.Episode.Aired, e.DisplayTitle(),
					latest.Episode.AiredAt.Format(time.RFC3339), fixed.Format(time.RFC3339))
				latest.Episode.AiredAt = fixed
			}
			continue
		}

		u.logger.Info().Str("title", e.DisplayTitle()).Msg("re-basing recorded episodes onto the corrected airing date")
		original := make([]time.Time, len(idxs))
		for k, idx := range idxs {
			original[k] = feed[idx].Episode.AiredAt
		}

		corrected := -1
		usePredict := false
		var zeroIndexDate time.Time
		for k, idx := range idxs {
			rec := &feed[idx]
			prevDate := rec.Episode.AiredAt
			pd := prevDate.UTC()
			anchor := e.EpisodeDate.UTC()
			predict := time.Date(pd.Year(), pd.Month(), pd.Day(), anchor.Hour(), pd.Minute(), pd.Second(), 0, time.UTC)

			if k != 0 {
				corrected -= timeutil.WeeksDifference(prevDate, original[k-1])
				if usePredict && k == 1 {
					corrected++
				}
			} else {
				switch {
				case rec.Episode.Aired == e.EpisodeNumber ||
					(e.SubtractedEpisodeNumber > 0 && rec.Episode.Aired >= e.SubtractedEpisodeNumber):
					zeroIndexDate = e.EpisodeDate
				case e.DelayedFrom != nil && timeutil.WeeksDifference(*e.DelayedFrom, now) <= 1:
					zeroIndexDate = *e.DelayedFrom
				default:
					zeroIndexDate = predict
				}
				usePredict = timeutil.Truncate(predict).Equal(timeutil.Truncate(zeroIndexDate))
			}

			weeks := corrected
			if usePredict && k == 0 {
				weeks = 0
			}
			newAt := timeutil.Truncate(timeutil.AdvanceIfPast(zeroIndexDate, now, weeks, true))
			if newAt.Equal(timeutil.Truncate(prevDate)) {
				continue
			}
			u.changes.Addf("%s Modified Episode %d of %s from %s to %s", domain.CategoryDub.Tag(), rec.Episode.Aired, e.DisplayTitle(),
				prevDate.Format(time.RFC3339), newAt.Format(time.RFC3339))
			rec.Episode.AiredAt = newAt
		}
	}
	return feed
}

// synthesize is phase D: backfill every episode between the feed's last
// recorded one and the schedule's current one, then emit the current episode
// itself once its instant has passed and no delay window holds it back.
func (u *Updater) synthesize(ctx context.Context, sched domain.Schedule, feed domain.Feed, now time.Time) (domain.Feed, error) {
	var fresh domain.Feed
	for i := range sched {
		e := &sched[i]
		media := resolvedMedia(e)
		if media == nil {
			continue
		}
		if e.Unaired && e.EpisodeDate.After(now) {
			continue
		}

		latest := e.EpisodeNumber
		lastFeed := feed.LastAired(media.ID)
		episodeType := 0

		for epNum := lastFeed + 1; epNum < latest; epNum++ {
			base := baseEpisode(feed, media.ID, epNum, lastFeed)
			prevEntry, err := u.previousWeekEntry(ctx, e.Route, now)
			if err != nil {
				return nil, err
			}
			multiHeader := (prevEntry == nil && e.SubtractedEpisodeNumber > 0) ||
				(prevEntry != nil && (prevEntry.EpisodeNumber != lastFeed || prevEntry.EpisodeNumber != e.EpisodeNumber-2))
			switch {
			case multiHeader && base != nil:
				episodeType = 2
			case multiHeader:
				episodeType = 1
			default:
				episodeType = 0
			}

			if base == nil && latest > epNum {
				// nothing recorded yet but episodes already aired: walk the
				// anchor back week by week until it lands in the past
				weeksAgo := -1
				pastDate := timeutil.AdvanceIfPast(e.EpisodeDate, now, weeksAgo, true)
				for !pastDate.Before(now) {
					weeksAgo--
					pastDate = timeutil.AdvanceIfPast(e.EpisodeDate, now, weeksAgo, true)
				}
				added := timeutil.Truncate(now)
				base = &domain.EpisodeFeedRecord{Episode: domain.FeedEpisode{Aired: epNum, AiredAt: pastDate, AddedAt: &added}}
			}

			var airedAt time.Time
			switch {
			case multiHeader && (epNum == e.EpisodeNumber || (e.SubtractedEpisodeNumber > 0 && epNum >= e.SubtractedEpisodeNumber)):
				airedAt = e.EpisodeDate
			case multiHeader && base != nil:
				airedAt = base.Episode.AiredAt
			case multiHeader:
				airedAt = e.EpisodeDate
			default:
				airedAt = timeutil.AdvanceIfPast(e.EpisodeDate, now, -(latest-epNum), true)
			}

			fresh = append(fresh, newRecord(media, epNum, airedAt, now))
			u.changes.Addf("%s Added%s%s Episode %d for %s", domain.CategoryDub.Tag(),
				missingTag(multiHeader && base != nil), multiHeaderTag(multiHeader), epNum, e.DisplayTitle())
		}

		if e.EpisodeNumber != lastFeed && !e.EpisodeDate.After(now) &&
			(e.DelayedUntil == nil || !e.DelayedUntil.After(e.EpisodeDate)) {
			fresh = append(fresh, newRecord(media, latest, e.EpisodeDate, now))
			u.changes.Addf("%s Added%s%s Episode %d for %s", domain.CategoryDub.Tag(),
				missingTag(episodeType == 2), multiHeaderTag(episodeType != 0), latest, e.DisplayTitle())
		}
	}

	// idempotent merge: never re-emit a recorded (id, episode) pair
	kept := fresh[:0]
	for _, rec := range fresh {
		if !feed.Has(rec.ID, rec.Episode.Aired) {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func (u *Updater) previousWeekEntry(ctx context.Context, route string, now time.Time) (*domain.TimetableEntry, error) {
	prev, err := u.source.PreviousWeek(ctx, now)
	if err != nil {
		return nil, err
	}
	for i := range prev {
		if prev[i].Route == route {
			return &prev[i], nil
		}
	}
	return nil, nil
}

func resolvedMedia(e *domain.ScheduleEntry) *domain.Media {
	if e.Media == nil {
		return nil
	}
	return e.Media.Media
}

func newRecord(media *domain.Media, aired int, airedAt, now time.Time) domain.EpisodeFeedRecord {
	added := timeutil.Truncate(now)
	return domain.EpisodeFeedRecord{
		ID:       media.ID,
		IDMal:    media.IDMal,
		Format:   media.Format,
		Duration: media.Duration,
		Episode: domain.FeedEpisode{
			Aired:   aired,
			AiredAt: timeutil.Truncate(airedAt),
			AddedAt: &added,
		},
	}
}

// dstFixApplies reports whether the recorded airing sits close enough to now
// for the single-record time-of-day correction. Older mismatches predate the
// transition and get the full re-walk instead.
func dstFixApplies(airedAt, now time.Time, windowDays int) bool {
	if windowDays <= 0 {
		return false
	}
	d := now.Sub(airedAt)
	if d < 0 {
		d = -d
	}
	return d <= time.Duration(windowDays)*24*time.Hour
}

// baseEpisode finds an adjacent recorded episode usable as a date anchor for
// a backfill: the first at or below epNum, else the last recorded one.
func baseEpisode(feed domain.Feed, id, epNum, lastFeed int) *domain.EpisodeFeedRecord {
	for i := range feed {
		if feed[i].ID == id && feed[i].Episode.Aired <= epNum {
			return &feed[i]
		}
	}
	for i := range feed {
		if feed[i].ID == id && feed[i].Episode.Aired == lastFeed {
			return &feed[i]
		}
	}
	return nil
}

// feedIndices returns the positions of all records for id, ordered by
// descending episode number.
func feedIndices(feed domain.Feed, id int) []int {
	var idxs []int
	for i := range feed {
		if feed[i].ID == id {
			idxs = append(idxs, i)
		}
	}
	for a := 0; a < len(idxs); a++ {
		for b := a + 1; b < len(idxs); b++ {
			if feed[idxs[b]].Episode.Aired > feed[idxs[a]].Episode.Aired {
				idxs[a], idxs[b] = idxs[b], idxs[a]
			}
		}
	}
	return idxs
}

func dedupe(feed domain.Feed) domain.Feed {
	type key struct{ id, aired int }
	seen := map[key]bool{}
	out := feed[:0]
	for _, rec := range feed {
		k := key{rec.ID, rec.Episode.Aired}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, rec)
	}
	return out
}

func missingTag(missing bool) string {
	if missing {
		return " Missing"
	}
	return ""
}

func multiHeaderTag(multi bool) string {
	if multi {
		return " (multi-header) release"
	}
	return ""
}
