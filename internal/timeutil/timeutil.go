// Package timeutil holds the week arithmetic and DST probing used by the
// schedule reconciler. Everything here is a pure function over time.Time.
package timeutil

import (
	"math"
	"time"
)

const week = 7 * 24 * time.Hour

// WeekNumber returns the ISO-8601 year and week for t.
func WeekNumber(t time.Time) (isoYear, isoWeek int) {
	return t.UTC().ISOWeek()
}

// WeeksInYear returns 52 or 53. A year has 53 ISO weeks only when Jan 1 or
// Dec 31 falls on a Thursday.
func WeeksInYear(year int) int {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	dec31 := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	if jan1.Weekday() == time.Thursday || dec31.Weekday() == time.Thursday {
		return 53
	}
	return 52
}

// WeeksDifference returns the signed rounded number of weeks from a to b.
func WeeksDifference(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / (7 * 24)))
}

// DayTimeMatch reports whether a and b occupy the same weekly slot: same
// day-of-week, hour and minute in UTC. A mismatch means the schedule shifted
// rather than simply advancing a week.
func DayTimeMatch(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Weekday() == b.Weekday() && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

// AdvanceIfPast adds weeks*7 days to t when t is already before now or when
// force is set, and returns t unchanged otherwise. This is the single
// primitive used to roll dates forward; dates are never advanced blindly.
func AdvanceIfPast(t, now time.Time, weeks int, force bool) time.Time {
	if force || t.Before(now) {
		return t.Add(time.Duration(weeks) * week)
	}
	return t
}

// DSTWindow brackets the two wall-clock transition instants of a year in the
// host's local timezone. Start/End are zero when the zone has no transitions.
type DSTWindow struct {
	Start time.Time
	End   time.Time
}

// DSTTransitionWindow probes the local UTC offset day by day at 02:00 and
// records the first two days where the offset changes. Zones without DST
// yield a zero window.
func DSTTransitionWindow(year int) DSTWindow {
	return dstTransitionWindow(year, time.Local)
}

func dstTransitionWindow(year int, loc *time.Location) DSTWindow {
	var w DSTWindow
	prev := time.Date(year, time.January, 1, 2, 0, 0, 0, loc)
	_, prevOffset := prev.Zone()
	for d := prev.AddDate(0, 0, 1); d.Year() == year; d = d.AddDate(0, 0, 1) {
		_, offset := d.Zone()
		if offset != prevOffset {
			if w.Start.IsZero() {
				w.Start = d
			} else {
				w.End = d
				break
			}
		}
		prevOffset = offset
	}
	return w
}

// IsDSTTransitionMonth reports whether now's month contains a DST start or
// end transition in the host's local timezone.
func IsDSTTransitionMonth(now time.Time) bool {
	return isDSTTransitionMonth(now, time.Local)
}

func isDSTTransitionMonth(now time.Time, loc *time.Location) bool {
	w := dstTransitionWindow(now.Year(), loc)
	now = now.In(loc)
	for _, t := range []time.Time{w.Start, w.End} {
		if !t.IsZero() && t.Year() == now.Year() && t.Month() == now.Month() {
			return true
		}
	}
	return false
}

// SameDayTimeFix returns t with its hour set to match anchor's hour, used for
// the single-episode DST correction where a full weekly re-walk would
// over-correct.
func SameDayTimeFix(t, anchor time.Time) time.Time {
	t, anchor = t.UTC(), anchor.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), anchor.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// Truncate drops sub-second precision; persisted timestamps carry whole
// seconds only so runs stay byte-stable.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
