package resolver

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"anischedule/internal/domain"
)

// Verification thresholds: the tolerated edit distance as a fraction of the
// query length. Short titles have almost no slack before they collide with
// unrelated series; long titles accumulate harmless punctuation drift.
const (
	baseThreshold  = 0.3
	shortThreshold = 0.2
	longThreshold  = 0.4

	shortTitleLen = 9
	longTitleLen  = 15
)

var (
	reApostrophe = regexp.MustCompile(`['’]`)
	reNonWord    = regexp.MustCompile(`[^\p{L}\p{N}\p{Zs}\p{Pd}]`)
	reManySpace  = regexp.MustCompile(`\s+`)
)

func thresholdFor(phrase string) float64 {
	switch n := len([]rune(phrase)); {
	case n <= shortTitleLen:
		return shortThreshold
	case n > longTitleLen:
		return longThreshold
	}
	return baseThreshold
}

func cleanText(s string) string {
	s = reApostrophe.ReplaceAllString(s, "")
	s = reNonWord.ReplaceAllString(s, " ")
	return strings.TrimSpace(reManySpace.ReplaceAllString(s, " "))
}

// VerifyMatch is the fuzzy containment gate: it confirms that the candidate
// record's title/synonym set plausibly contains the query phrase. A raw pass
// runs first; a cleaned pass with slightly loosened tolerance follows when
// cleaning changed anything.
func VerifyMatch(media *domain.Media, phrase string) bool {
	if phrase == "" {
		return true
	}
	if media == nil {
		return false
	}
	threshold := thresholdFor(phrase)

	candidates := media.Title.All()
	candidates = append(candidates, media.Synonyms...)

	for _, c := range candidates {
		if fuzzyContains(c, phrase, threshold) {
			return true
		}
	}
	cleanedPhrase := cleanText(phrase)
	for _, c := range candidates {
		cleaned := cleanText(c)
		t := threshold
		if cleaned != c || cleanedPhrase != phrase {
			t += 0.05
		}
		if fuzzyContains(cleaned, cleanedPhrase, t) {
			return true
		}
	}
	return false
}

func fuzzyContains(candidate, phrase string, threshold float64) bool {
	if candidate == "" || phrase == "" {
		return false
	}
	c, p := strings.ToLower(candidate), strings.ToLower(phrase)
	if strings.Contains(c, p) || strings.Contains(p, c) {
		return true
	}
	longest := len([]rune(c))
	if n := len([]rune(p)); n > longest {
		longest = n
	}
	dist := levenshtein.ComputeDistance(c, p)
	return float64(dist)/float64(longest) <= threshold
}
