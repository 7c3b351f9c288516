package resolver

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reSeasonSuffix = regexp.MustCompile(` S(\d+)`)
	rePunct        = regexp.MustCompile(`[-:]`)
	reDoubleSpace  = regexp.MustCompile(`[ ]{2,}`)
)

func ordinal(n int) string {
	switch n {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// AlternativeTitles expands a title into the candidate spellings the search
// runs against. A " S<n>" marker becomes "<n>th Season" and "Season <n>"
// rewrites (an S1 marker is simply dropped), then punctuation-stripped and
// "(TV)"-stripped variants are layered on top. The original string's
// non-season content is always preserved.
func AlternativeTitles(title string) []string {
	seen := map[string]bool{}
	var titles []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			titles = append(titles, s)
		}
	}

	modified := title
	if m := reSeasonSuffix.FindStringSubmatch(title); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n == 1 {
			modified = reSeasonSuffix.ReplaceAllString(title, "")
			add(modified)
		} else {
			nth := " " + strconv.Itoa(n) + ordinal(n) + " Season"
			modified = replaceFirst(title, m[0], nth)
			add(modified)
			add(replaceFirst(title, m[0], " Season "+strconv.Itoa(n)))
		}
	} else {
		add(title)
	}

	if rePunct.MatchString(modified) {
		modified = reDoubleSpace.ReplaceAllString(rePunct.ReplaceAllString(modified, ""), " ")
		add(modified)
	}

	if strings.Contains(modified, "(TV)") {
		modified = strings.ReplaceAll(modified, "(TV)", "")
		add(modified)
	}

	return titles
}

func replaceFirst(s, old, new string) string {
	return strings.Replace(s, old, new, 1)
}
