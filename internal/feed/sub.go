package feed

import (
	"time"

	"anischedule/internal/domain"
)

// updateSeasonal appends newly aired episodes from the seasonal schedule to
// the sub feed, diverting adult titles to the hentai feed. Unlike the dub
// side there is nothing to reconcile: the metadata source corrects itself.
func (u *Updater) updateSeasonal(seasonal []domain.Media, subFeed, hentaiFeed domain.Feed, now time.Time) (domain.Feed, domain.Feed) {
	var newSub, newHentai domain.Feed
	for i := range seasonal {
		media := &seasonal[i]
		if media.AiringSchedule == nil {
			continue
		}
		for _, node := range media.AiringSchedule.Nodes {
			lastAired := subFeed.LastAired(media.ID)
			if h := hentaiFeed.LastAired(media.ID); h > lastAired {
				lastAired = h
			}
			airingAt := time.Unix(node.AiringAt, 0).UTC()
			if node.Episode == lastAired || airingAt.After(now) {
				continue
			}
			rec := newRecord(media, node.Episode, airingAt, now)
			if isHentai(media) {
				newHentai = append(newHentai, rec)
				u.changes.Addf("%s Added Episode %d for %s", domain.CategoryHentai.Tag(), node.Episode, media.Title.Preferred())
			} else {
				newSub = append(newSub, rec)
				u.changes.Addf("%s Added Episode %d for %s", domain.CategorySub.Tag(), node.Episode, media.Title.Preferred())
			}
		}
	}

	return mergeNew(newSub, subFeed), mergeNew(newHentai, hentaiFeed)
}

func mergeNew(fresh, existing domain.Feed) domain.Feed {
	kept := fresh[:0]
	for _, rec := range fresh {
		if !existing.Has(rec.ID, rec.Episode.Aired) {
			kept = append(kept, rec)
		}
	}
	merged := make(domain.Feed, 0, len(kept)+len(existing))
	merged = append(merged, kept...)
	merged = append(merged, existing...)
	merged = dedupe(merged)
	merged.SortAiredDesc()
	return merged
}

func isHentai(media *domain.Media) bool {
	for _, g := range media.Genres {
		if g == "Hentai" {
			return true
		}
	}
	return false
}
