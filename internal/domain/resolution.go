package domain

import "strconv"

// ParsedTitle is the structured result of parsing a free-form route or file
// name. Zero values mean "not present".
type ParsedTitle struct {
	Title   string
	Season  int
	Episode int
	Year    int
}

// CacheKey derives the title-resolution cache key: title plus the year when
// one was parsed, so "Title" and "Title 2019" resolve independently.
func (p ParsedTitle) CacheKey() string {
	if p.Year > 0 {
		return p.Title + strconv.Itoa(p.Year)
	}
	return p.Title
}

// MatchOutcome classifies how much a resolved media record can be trusted.
type MatchOutcome int

const (
	// MatchUnresolved means no candidate survived scoring or fallbacks.
	MatchUnresolved MatchOutcome = iota
	// MatchNeedsVerification means a candidate exists but the fuzzy
	// containment gate rejected it; fallbacks should run.
	MatchNeedsVerification
	// MatchConfirmed means the candidate passed verification.
	MatchConfirmed
)

func (o MatchOutcome) String() string {
	switch o {
	case MatchConfirmed:
		return "confirmed"
	case MatchNeedsVerification:
		return "needs-verification"
	}
	return "unresolved"
}
