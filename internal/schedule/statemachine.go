package schedule

import (
	"context"
	"errors"
	"regexp"
	"time"

	"anischedule/internal/animeschedule"
	"anischedule/internal/domain"
	"anischedule/internal/timeutil"
)

// reNoDub matches delay texts announcing a partial or cancelled dub; such a
// series concludes at its current episode instead of being delayed.
var reNoDub = regexp.MustCompile(`(?i)(partial(?:ly)?[ -]?dub|no[ -]?dub|not (?:be )?dubbed|dub (?:has been )?cancel?led)`)

// reconcile applies the per-route state machine: every previously known entry
// is checked against the fresh snapshot and either carried forward, reclassed
// as delayed, purged as a false positive, or retired with a recorded change.
// Verified entries are never dropped silently.
func (m *Merger) reconcile(ctx context.Context, cat domain.Category, old domain.Schedule, fresh []domain.TimetableEntry, now time.Time) (domain.Schedule, error) {
	working := make(domain.Schedule, 0, len(fresh))
	for _, row := range fresh {
		working = append(working, domain.ScheduleEntry{TimetableEntry: row})
	}

	for i := range old {
		entry := old[i]
		cur := working.Find(entry.Route)

		if cur != nil && concludesDub(cur.DelayedText, cur.DelayedFrom, now, m.cfg.DelayedFromWindowWeeks) {
			m.changes.Addf("%s The series %s will not receive a full dub, concluding it at Episode %d", cat.Tag(), entry.DisplayTitle(), entry.EpisodeNumber)
			if err := m.truncateFeed(cat, entry.MediaID(), entry.EpisodeNumber, entry.DisplayTitle()); err != nil {
				return nil, err
			}
			working = removeRoute(working, entry.Route)
			continue
		}

		switch {
		case cur == nil && entry.Verified:
			if entry.DelayCovers(now) {
				// delay window still implies a future airing; a missing row
				// here is a transient upstream bug, not a removal
				m.logger.Warn().Str("title", entry.DisplayTitle()).Msg("verified delayed series missing from the timetables, carrying it forward unchanged")
				working = append(working, entry)
			} else if entry.Episodes == 0 || entry.EpisodeNumber < entry.Episodes {
				if !entry.DelayedIndefinitely {
					m.changes.Addf("%s The verified series %s Episode %d has been delayed indefinitely", cat.Tag(), entry.DisplayTitle(), entry.EpisodeNumber+1)
					m.logger.Info().Str("title", entry.DisplayTitle()).Msg("verified series missing from the timetables, assuming an indefinite delay")
					until := indefiniteDelaySentinel(now, m.cfg.IndefiniteDelayYears)
					entry.DelayedUntil = &until
					entry.DelayedIndefinitely = true
				}
				working = append(working, entry)
			} else {
				m.changes.Addf("%s The series %s finished airing and left the timetables", cat.Tag(), entry.DisplayTitle())
			}

		case cur == nil && !entry.Verified && entry.EpisodeNumber >= 2 && !mondayRollover(now):
			carried, err := m.handleUnverifiedAbsence(ctx, cat, entry, now)
			if err != nil {
				return nil, err
			}
			if carried != nil {
				working = append(working, *carried)
			}

		case cur != nil && !cur.DelayedIndefinitely && malformedDelayWindow(cur, now, m.cfg.DelayedFromWindowWeeks):
			if !entry.DelayedIndefinitely {
				m.changes.Addf("%s The series %s Episode %d has been delayed indefinitely", cat.Tag(), entry.DisplayTitle(), entry.EpisodeNumber)
				m.logger.Info().Str("title", entry.DisplayTitle()).Msg("delayedFrom specified without a usable delayedUntil, assuming an indefinite delay")
				until := indefiniteDelaySentinel(now, m.cfg.IndefiniteDelayYears)
				cur.Verified = true
				cur.DelayedUntil = &until
				cur.DelayedIndefinitely = true
			} else {
				*cur = entry
			}
		}
	}

	return working, nil
}

// handleUnverifiedAbsence decides what to do with an unverified entry that
// vanished from the snapshot: usually an erroneous addition whose feed
// episodes must be purged, unless the route's canonical page shows the dub
// premiere already happened, in which case the removal was itself the
// mistake and the entry is carried forward as a retroactive addition.
func (m *Merger) handleUnverifiedAbsence(ctx context.Context, cat domain.Category, entry domain.ScheduleEntry, now time.Time) (*domain.ScheduleEntry, error) {
	prev, err := m.source.PreviousWeek(ctx, now)
	if err != nil {
		return nil, err
	}
	var prevEntry *domain.TimetableEntry
	for i := range prev {
		if prev[i].Route == entry.Route {
			prevEntry = &prev[i]
			break
		}
	}
	// a series sitting at its final episode last week with a near-complete
	// batch range legitimately falls off the timetables
	if prevEntry != nil && prevEntry.EpisodeNumber == entry.Episodes && prevEntry.SubtractedEpisodeNumber <= 1 {
		return nil, nil
	}

	detail, err := m.source.Detail(ctx, entry.Route)
	if err != nil && !errors.Is(err, animeschedule.ErrRouteNotFound) {
		return nil, err
	}
	if detail != nil && detail.PremierDub != nil {
		premiered := detail.PremierDub.Before(now) && detail.PremierDub.After(now.AddDate(-1, 0, 0))
		if premiered {
			m.changes.Addf("%s The series %s premiered on %s, treating its removal as a retroactive addition", cat.Tag(), entry.DisplayTitle(), detail.PremierDub.Format("2006-01-02"))
			return &entry, nil
		}
	}

	m.changes.Addf("%s The un-verified series %s was removed from the timetables.", cat.Tag(), entry.DisplayTitle())
	m.logger.Info().Str("title", entry.DisplayTitle()).Msg("un-verified series missing from the timetables, likely added by mistake")
	if err := m.purgeFeed(cat, entry.MediaID(), entry.DisplayTitle()); err != nil {
		return nil, err
	}
	return nil, nil
}

// purgeFeed removes every feed record for id, recording each removal.
func (m *Merger) purgeFeed(cat domain.Category, id int, title string) error {
	if id == 0 {
		return nil
	}
	feed, err := m.store.LoadFeed(cat)
	if err != nil {
		return err
	}
	kept := feed[:0]
	for _, rec := range feed {
		if rec.ID == id {
			m.changes.Addf("%s Removed Episode %d for %s (Timetables Correction).", cat.Tag(), rec.Episode.Aired, title)
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == len(feed) {
		return nil
	}
	kept.SortAiredDesc()
	_, err = m.store.SaveFeed(cat, kept)
	return err
}

// truncateFeed removes every feed record for id at or past fromEpisode.
func (m *Merger) truncateFeed(cat domain.Category, id, fromEpisode int, title string) error {
	if id == 0 {
		return nil
	}
	feed, err := m.store.LoadFeed(cat)
	if err != nil {
		return err
	}
	kept := feed[:0]
	for _, rec := range feed {
		if rec.ID == id && rec.Episode.Aired >= fromEpisode {
			m.changes.Addf("%s Removed Episode %d for %s (Series Conclusion).", cat.Tag(), rec.Episode.Aired, title)
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == len(feed) {
		return nil
	}
	kept.SortAiredDesc()
	_, err = m.store.SaveFeed(cat, kept)
	return err
}

func removeRoute(s domain.Schedule, route string) domain.Schedule {
	out := s[:0]
	for _, e := range s {
		if e.Route != route {
			out = append(out, e)
		}
	}
	return out
}

// malformedDelayWindow reports a delayedFrom within the recent window whose
// delayedUntil is missing or precedes it, the upstream's way of flagging a
// delay with no known resumption date.
func malformedDelayWindow(e *domain.ScheduleEntry, now time.Time, windowWeeks int) bool {
	if e.DelayedFrom == nil {
		return false
	}
	if timeutil.WeeksDifference(*e.DelayedFrom, now) > windowWeeks {
		return false
	}
	return e.DelayedUntil == nil || e.DelayedFrom.After(*e.DelayedUntil)
}

// concludesDub reports a delay text announcing a partial or cancelled dub
// with a delay window recent enough to act on.
func concludesDub(text string, from *time.Time, now time.Time, windowWeeks int) bool {
	if text == "" || !reNoDub.MatchString(text) {
		return false
	}
	if from == nil {
		return true
	}
	return timeutil.WeeksDifference(*from, now) <= windowWeeks
}

// mondayRollover guards the false-positive purge: right after the ISO week
// rolls over the new snapshot routinely lags behind weekend batch drops, so
// absences observed on a Monday are not trusted.
func mondayRollover(now time.Time) bool {
	return now.UTC().Weekday() == time.Monday
}

// indefiniteDelaySentinel is the far-future delayedUntil marker: January 1st,
// six years out by default.
func indefiniteDelaySentinel(now time.Time, years int) time.Time {
	return time.Date(now.UTC().Year()+years, time.January, 1, 0, 0, 0, 0, time.UTC)
}
