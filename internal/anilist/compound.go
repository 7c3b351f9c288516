package anilist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"anischedule/internal/domain"
)

// TitleVariant is one candidate spelling submitted to the compound search.
// Variants sharing a Key compete for the same cache slot downstream.
type TitleVariant struct {
	Key     string
	Title   string
	Year    int
	IsAdult bool
}

// KeyedMedia pairs a resolution key with the best-scoring full record.
type KeyedMedia struct {
	Key   string
	Media *domain.Media
}

// lightMedia is the reduced fragment used inside the compound query; full
// records are fetched afterwards by id.
type lightMedia struct {
	ID       int               `json:"id"`
	Title    domain.MediaTitle `json:"title"`
	Synonyms []string          `json:"synonyms"`
}

type compoundPage struct {
	Media []lightMedia `json:"media"`
}

// SearchCompound batches all variants into a single multi-query request and
// picks, per key, the candidate with the lowest edit distance to the queried
// phrase. Synonyms are penalized by +2 so primary titles win ties. The
// caller is responsible for chunking to the complexity budget.
func (c *Client) SearchCompound(ctx context.Context, variants []TitleVariant) ([]KeyedMedia, error) {
	c.logger.Debug().Int("titles", len(variants)).Msg("searching titles via compound search")
	if len(variants) == 0 {
		return nil, nil
	}

	// Adult duplicates reuse the preceding variable: the title text is the
	// same, only the isAdult flag differs.
	vars := map[string]any{}
	var decls []string
	for i, v := range variants {
		if v.IsAdult && i != 0 {
			continue
		}
		vars[fmt.Sprintf("v%d", i)] = v.Title
		decls = append(decls, fmt.Sprintf("$v%d: String", i))
	}

	var frags strings.Builder
	for i, v := range variants {
		ref := i
		if v.IsAdult && i != 0 {
			ref = i - 1
		}
		year := ""
		if v.Year > 0 {
			year = fmt.Sprintf(", seasonYear: %d", v.Year)
		}
		fmt.Fprintf(&frags, `
	v%d: Page(perPage: 10) {
		media(type: ANIME, search: $v%d, status_in: [RELEASING, FINISHED], isAdult: %t%s) { ...med }
	}`, i, ref, v.IsAdult, year)
	}

	query := fmt.Sprintf(`query(%s) { %s }
	fragment med on Media { id, title { romaji, english, native }, synonyms }`,
		strings.Join(decls, ", "), frags.String())

	var out response[map[string]compoundPage]
	if err := c.do(ctx, query, vars, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, errors.New(out.Errors[0].Message)
	}

	// First writer wins per key; iterate variables in declaration order so
	// the outcome is deterministic.
	names := make([]string, 0, len(out.Data))
	for name := range out.Data {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool { return variantIndex(names[a]) < variantIndex(names[b]) })

	best := map[string]int{}
	var keys []string
	for _, name := range names {
		page := out.Data[name]
		if len(page.Media) == 0 {
			continue
		}
		idx := variantIndex(name)
		if idx < 0 || idx >= len(variants) {
			continue
		}
		v := variants[idx]
		if _, done := best[v.Key]; done {
			continue
		}
		winner, ok := closestMedia(page.Media, v.Title)
		if !ok {
			continue
		}
		best[v.Key] = winner
		keys = append(keys, v.Key)
	}
	if len(best) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(best))
	for _, id := range best {
		ids = append(ids, id)
	}
	full, err := c.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := map[int]*domain.Media{}
	for i := range full {
		byID[full[i].ID] = &full[i]
	}

	results := make([]KeyedMedia, 0, len(keys))
	for _, key := range keys {
		results = append(results, KeyedMedia{Key: key, Media: byID[best[key]]})
	}
	return results, nil
}

func variantIndex(name string) int {
	if !strings.HasPrefix(name, "v") {
		return -1
	}
	n := 0
	for _, r := range name[1:] {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// closestMedia returns the index-selected candidate id with the lowest
// distance to name across all its titles and synonyms.
func closestMedia(candidates []lightMedia, name string) (int, bool) {
	bestID, bestDist := 0, -1
	for _, m := range candidates {
		d := distanceFromTitle(m, name)
		if bestDist < 0 || d < bestDist {
			bestID, bestDist = m.ID, d
		}
	}
	return bestID, bestDist >= 0
}

func distanceFromTitle(m lightMedia, name string) int {
	lower := strings.ToLower(name)
	best := -1
	for _, t := range m.Title.All() {
		d := levenshtein.ComputeDistance(strings.ToLower(t), lower)
		if best < 0 || d < best {
			best = d
		}
	}
	for _, syn := range m.Synonyms {
		if syn == "" {
			continue
		}
		d := levenshtein.ComputeDistance(strings.ToLower(syn), lower) + 2
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		best = len(name) + 2
	}
	return best
}
