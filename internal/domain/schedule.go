package domain

import "time"

// TimetableEntry is one row of an upstream timetable snapshot. The route is
// the opaque upstream identifier and the unique key within a schedule.
type TimetableEntry struct {
	Route                   string     `json:"route"`
	Title                   string     `json:"title"`
	Romaji                  string     `json:"romaji,omitempty"`
	English                 string     `json:"english,omitempty"`
	Native                  string     `json:"native,omitempty"`
	AirType                 string     `json:"airType,omitempty"`
	EpisodeNumber           int        `json:"episodeNumber"`
	SubtractedEpisodeNumber int        `json:"subtractedEpisodeNumber,omitempty"`
	Episodes                int        `json:"episodes,omitempty"`
	EpisodeDate             time.Time  `json:"episodeDate"`
	DelayedText             string     `json:"delayedText,omitempty"`
	DelayedFrom             *time.Time `json:"delayedFrom,omitempty"`
	DelayedUntil            *time.Time `json:"delayedUntil,omitempty"`
	LengthMin               int        `json:"lengthMin,omitempty"`
}

// ScheduleEntry is one tracked airing series. It starts life as a raw
// TimetableEntry and accumulates reconciliation state across runs.
type ScheduleEntry struct {
	TimetableEntry

	Verified            bool           `json:"verified"`
	AddedAt             *time.Time     `json:"addedAt,omitempty"`
	DelayedIndefinitely bool           `json:"delayedIndefinitely,omitempty"`
	Unaired             bool           `json:"unaired,omitempty"`
	Unresolved          bool           `json:"unresolved,omitempty"`
	Media               *ResolvedMedia `json:"media,omitempty"`
}

// ResolvedMedia is the outcome of resolving a route against the metadata API.
// Failed marks a low-confidence resolution (season walk ran off the relation
// graph); the entry is still usable but flagged for review.
type ResolvedMedia struct {
	Media  *Media `json:"media,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// MediaID returns the canonical id, or 0 when resolution has not succeeded.
func (e *ScheduleEntry) MediaID() int {
	if e == nil || e.Media == nil || e.Media.Media == nil {
		return 0
	}
	return e.Media.Media.ID
}

// DisplayTitle prefers the resolved canonical title, falling back to the
// upstream row's own title fields.
func (e *ScheduleEntry) DisplayTitle() string {
	if e == nil {
		return ""
	}
	if e.Media != nil && e.Media.Media != nil {
		if t := e.Media.Media.Title.Preferred(); t != "" {
			return t
		}
	}
	for _, s := range []string{e.Title, e.English, e.Romaji, e.Native, e.Route} {
		if s != "" {
			return s
		}
	}
	return ""
}

// DelayCovers reports whether the entry's delay window still covers its
// current episode, i.e. delayedUntil is at or past the episode date and still
// in the future.
func (e *ScheduleEntry) DelayCovers(now time.Time) bool {
	if e == nil || e.DelayedUntil == nil {
		return false
	}
	return !e.DelayedUntil.Before(e.EpisodeDate) && e.DelayedUntil.After(now)
}

// Schedule is the persisted working set, one entry per route.
type Schedule []ScheduleEntry

// Find returns the entry for route, or nil.
func (s Schedule) Find(route string) *ScheduleEntry {
	for i := range s {
		if s[i].Route == route {
			return &s[i]
		}
	}
	return nil
}
