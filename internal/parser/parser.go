// Package parser normalizes free-form route and file names into structured
// (title, season, episode, year) tuples. The heuristics target upstream
// route slugs and loosely formatted release names, not clean catalog titles.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"anischedule/internal/domain"
)

var (
	reSeasonEpisode = regexp.MustCompile(`(?i)S(\d{2})E(\d{2})`)
	reSeasonSlug    = regexp.MustCompile(`(?i)season-(\d+)`)
	reYear          = regexp.MustCompile(` (19[5-9]\d|20\d{2})\b`)
	reEpisode       = regexp.MustCompile(`(?i)\b(?:e|ep|episode)[ -]?(\d+(?:\.\d+)?)\b`)
	reSeasonWords   = regexp.MustCompile(`(?i)\b(?:\d+(?:st|nd|rd|th)?\s*Season|Season\s*\d+)\b`)
	reSpaces        = regexp.MustCompile(`\s+`)
)

// Clean fixes common naming issues before any pattern matching runs.
func Clean(name string) string {
	name = strings.ReplaceAll(name, "1-2", "1/2")
	name = strings.ReplaceAll(name, "1_2", "1/2")
	name = strings.ReplaceAll(name, "½", "1/2")
	return strings.TrimSpace(reSpaces.ReplaceAllString(name, " "))
}

// Parse extracts a structured tuple from name. An empty Title means the name
// was unusable; callers must treat that as "skip, unresolvable".
func Parse(name string) domain.ParsedTitle {
	return parseAt(name, time.Now())
}

func parseAt(name string, now time.Time) domain.ParsedTitle {
	var p domain.ParsedTitle
	title := Clean(name)

	if m := reSeasonEpisode.FindStringSubmatch(title); m != nil {
		p.Season, _ = strconv.Atoi(m[1])
		p.Episode, _ = strconv.Atoi(m[2])
		title = strings.TrimSpace(reSeasonEpisode.ReplaceAllString(title, ""))
	} else if m := reSeasonSlug.FindStringSubmatch(title); m != nil {
		p.Season, _ = strconv.Atoi(m[1])
		title = strings.TrimSpace(reSeasonSlug.ReplaceAllString(title, ""))
	}

	if m := reYear.FindStringSubmatch(title); m != nil {
		if year, _ := strconv.Atoi(m[1]); year <= now.UTC().Year()+1 {
			p.Year = year
			title = strings.TrimSpace(strings.Replace(title, m[0], "", 1))
		}
	}

	fractional := false
	if p.Episode == 0 {
		if m := reEpisode.FindStringSubmatch(title); m != nil {
			if strings.Contains(m[1], ".") {
				// Fractional episodes are specials, not resolvable by this
				// numbering scheme: fall back to title-only.
				fractional = true
			} else {
				p.Episode, _ = strconv.Atoi(m[1])
			}
			title = strings.TrimSpace(reEpisode.ReplaceAllString(title, ""))
		}
	}
	if fractional {
		title = Clean(name)
		if p.Season > 1 {
			title = strings.TrimSpace(reSeasonWords.ReplaceAllString(title, ""))
		}
		p.Episode = 0
	}

	title = strings.Trim(title, " -")
	title = strings.TrimSpace(reSpaces.ReplaceAllString(title, " "))

	// Append a season marker so the title itself disambiguates sequels.
	// When no season was parsed an episode token frequently stands in for
	// one on route slugs; season 1 stays unmarked to match canonical
	// naming.
	n := p.Season
	if n == 0 {
		n = p.Episode
	}
	if !fractional && n > 1 && title != "" {
		title += " S" + strconv.Itoa(n)
	}

	p.Title = title
	return p
}

// ParseAll parses a batch of names, preserving order.
func ParseAll(names []string) []domain.ParsedTitle {
	out := make([]domain.ParsedTitle, 0, len(names))
	for _, name := range names {
		out = append(out, Parse(name))
	}
	return out
}
