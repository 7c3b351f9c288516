package domain

import (
	"sort"
	"time"
)

// EpisodeFeedRecord is one emitted "episode has aired" fact. At most one
// record exists per (id, episode.aired) pair in a feed.
type EpisodeFeedRecord struct {
	ID       int         `json:"id"`
	IDMal    int         `json:"idMal,omitempty"`
	Format   string      `json:"format,omitempty"`
	Duration int         `json:"duration,omitempty"`
	Episode  FeedEpisode `json:"episode"`
}

type FeedEpisode struct {
	Aired   int        `json:"aired"`
	AiredAt time.Time  `json:"airedAt"`
	AddedAt *time.Time `json:"addedAt,omitempty"`
}

// Feed is the append-mostly changelog of aired episodes, newest first.
type Feed []EpisodeFeedRecord

// Has reports whether a record for (id, aired) already exists.
func (f Feed) Has(id, aired int) bool {
	for i := range f {
		if f[i].ID == id && f[i].Episode.Aired == aired {
			return true
		}
	}
	return false
}

// ForMedia returns all records for id, sorted by descending episode number.
func (f Feed) ForMedia(id int) []EpisodeFeedRecord {
	out := make([]EpisodeFeedRecord, 0, 8)
	for i := range f {
		if f[i].ID == id {
			out = append(out, f[i])
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Episode.Aired > out[b].Episode.Aired })
	return out
}

// LastAired returns the highest episode number recorded for id, 0 when none.
func (f Feed) LastAired(id int) int {
	max := 0
	for i := range f {
		if f[i].ID == id && f[i].Episode.Aired > max {
			max = f[i].Episode.Aired
		}
	}
	return max
}

// SortAiredDesc orders the feed by descending airedAt, episode number as the
// tie-breaker within the same instant.
func (f Feed) SortAiredDesc() {
	sort.SliceStable(f, func(a, b int) bool {
		if !f[a].Episode.AiredAt.Equal(f[b].Episode.AiredAt) {
			return f[a].Episode.AiredAt.After(f[b].Episode.AiredAt)
		}
		return f[a].Episode.Aired > f[b].Episode.Aired
	})
}
