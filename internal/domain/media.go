package domain

// Media is the canonical metadata record a route or parsed title resolves to.
// Field shapes follow the AniList media object; only what reconciliation needs
// is carried.
type Media struct {
	ID                int             `json:"id"`
	IDMal             int             `json:"idMal,omitempty"`
	Title             MediaTitle      `json:"title"`
	Format            string          `json:"format,omitempty"`
	Status            string          `json:"status,omitempty"`
	Episodes          int             `json:"episodes,omitempty"`
	Duration          int             `json:"duration,omitempty"`
	Synonyms          []string        `json:"synonyms,omitempty"`
	Genres            []string        `json:"genres,omitempty"`
	IsAdult           bool            `json:"isAdult,omitempty"`
	Season            string          `json:"season,omitempty"`
	SeasonYear        int             `json:"seasonYear,omitempty"`
	NextAiringEpisode *AiringNode     `json:"nextAiringEpisode,omitempty"`
	AiringSchedule    *AiringSchedule `json:"airingSchedule,omitempty"`
	Relations         *Relations      `json:"relations,omitempty"`

	// Unaired is set on seasonal schedule documents for series whose first
	// episode has not aired yet. Not part of the upstream record.
	Unaired bool `json:"unaired,omitempty"`
}

type MediaTitle struct {
	Romaji        string `json:"romaji,omitempty"`
	English       string `json:"english,omitempty"`
	Native        string `json:"native,omitempty"`
	UserPreferred string `json:"userPreferred,omitempty"`
}

// Preferred returns the best display title available.
func (t MediaTitle) Preferred() string {
	for _, s := range []string{t.UserPreferred, t.English, t.Romaji, t.Native} {
		if s != "" {
			return s
		}
	}
	return ""
}

// All returns every non-empty title variant, userPreferred first.
func (t MediaTitle) All() []string {
	out := make([]string, 0, 4)
	for _, s := range []string{t.UserPreferred, t.English, t.Romaji, t.Native} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

type AiringSchedule struct {
	Nodes []AiringNode `json:"nodes"`
}

type AiringNode struct {
	Episode  int   `json:"episode"`
	AiringAt int64 `json:"airingAt"`
}

type Relations struct {
	Edges []RelationEdge `json:"edges"`
}

type RelationEdge struct {
	RelationType string       `json:"relationType"`
	Node         RelationNode `json:"node"`
}

type RelationNode struct {
	ID         int    `json:"id"`
	Type       string `json:"type,omitempty"`
	Format     string `json:"format,omitempty"`
	SeasonYear int    `json:"seasonYear,omitempty"`
}

// MaxEpisode returns the highest episode index the record knows about:
// the next airing episode while releasing, otherwise the total count.
func (m *Media) MaxEpisode() int {
	if m == nil {
		return 0
	}
	if m.NextAiringEpisode != nil && m.NextAiringEpisode.Episode > 0 {
		return m.NextAiringEpisode.Episode
	}
	return m.Episodes
}
