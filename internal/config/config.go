// Package config carries runtime settings and the named reconciliation
// heuristics. Values come from built-in defaults, an optional TOML file and
// environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrMissingToken is returned when a command requires the timetable API
// bearer token and none is configured.
var ErrMissingToken = errors.New("ANIMESCHEDULE_TOKEN environment variable is not defined")

type Config struct {
	// DataDir is the root for the raw/ and readable/ state mirrors.
	DataDir string `toml:"dataDir"`

	// AnimeScheduleToken authenticates against the timetable API. Required
	// for dub runs, fatal at startup when absent.
	AnimeScheduleToken string `toml:"-"`
	// AniListToken is optional; unauthenticated metadata queries work.
	AniListToken string `toml:"-"`

	AnimeScheduleURL string `toml:"animeScheduleUrl"`
	AniListURL       string `toml:"anilistUrl"`
	DubListURL       string `toml:"dubListUrl"`

	Heuristics Heuristics `toml:"heuristics"`
}

// Heuristics names the tuned thresholds accumulated by the reconciler. They
// are deliberately configuration, not inline constants: their boundary
// behavior is heuristic and tunable.
type Heuristics struct {
	// VerificationWindow is how long a route must survive consecutive
	// snapshots before destructive corrections are trusted.
	VerificationWindow time.Duration `toml:"verificationWindow"`
	// DelayedFromWindowWeeks bounds how recent a malformed delayedFrom
	// marker must be to infer an indefinite delay.
	DelayedFromWindowWeeks int `toml:"delayedFromWindowWeeks"`
	// IndefiniteDelayYears positions the far-future delayedUntil sentinel.
	IndefiniteDelayYears int `toml:"indefiniteDelayYears"`
	// FetchWindowWeeks is the rolling timetable window fetched each run.
	FetchWindowWeeks int `toml:"fetchWindowWeeks"`
	// InterPageDelay spaces sequential week fetches under the rate limit.
	InterPageDelay time.Duration `toml:"interPageDelay"`
	// CompoundChunkSize caps sub-queries per compound search request; the
	// upstream complexity budget allows at most ~62.
	CompoundChunkSize int `toml:"compoundChunkSize"`
	// DSTCorrectionWindowDays bounds the same-weekday time-of-day fix
	// applied during a DST transition month.
	DSTCorrectionWindowDays int `toml:"dstCorrectionWindowDays"`
}

func Default() Config {
	return Config{
		DataDir:          envOr("ANISCHEDULE_DATA_DIR", "."),
		AnimeScheduleURL: envOr("ANIMESCHEDULE_URL", "https://animeschedule.net/api/v3"),
		AniListURL:       envOr("ANILIST_URL", "https://graphql.anilist.co"),
		DubListURL:       envOr("MALDUBS_URL", "https://raw.githubusercontent.com/MAL-Dubs/MAL-Dubs/main/data/dubInfo.json"),

		AnimeScheduleToken: os.Getenv("ANIMESCHEDULE_TOKEN"),
		AniListToken:       os.Getenv("ANILIST_TOKEN"),

		Heuristics: Heuristics{
			VerificationWindow:      14 * 24 * time.Hour,
			DelayedFromWindowWeeks:  4,
			IndefiniteDelayYears:    6,
			FetchWindowWeeks:        4,
			InterPageDelay:          500 * time.Millisecond,
			CompoundChunkSize:       60,
			DSTCorrectionWindowDays: 8,
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path when path is
// non-empty. Tokens always come from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// RequireScheduleToken enforces the fatal-startup contract for commands that
// hit the timetable API.
func (c Config) RequireScheduleToken() error {
	if c.AnimeScheduleToken == "" {
		return ErrMissingToken
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
