// Package animeschedule consumes the upstream timetable API: weekly dub
// timetable snapshots plus the per-route detail endpoint used as a fallback
// lookup. A 404 on a weekly query means "no data that week", never an error;
// any other failure aborts the run so partial schedules are never persisted.
package animeschedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"anischedule/internal/domain"
	"anischedule/internal/ratelimit"
	"anischedule/internal/timeutil"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
	gate    *ratelimit.Gate
	logger  zerolog.Logger

	weeks   ratelimit.Single[[]domain.TimetableEntry]
	details ratelimit.Single[*RouteDetail]

	prevMu   sync.Mutex
	prevWeek []domain.TimetableEntry
	prevOK   bool
}

func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://animeschedule.net/api/v3"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: 20 * time.Second},
		gate: ratelimit.NewGate(ratelimit.Options{
			Reservoir:       200,
			RefillInterval:  30 * time.Second,
			MaxConcurrent:   15,
			MinTime:         80 * time.Millisecond,
			DefaultCooldown: 61 * time.Second,
		}),
		logger: logger,
	}
}

// RouteDetail is the per-route canonical page, used to recover a MAL id for
// direct-ID resolution and to check whether a dub premiere already happened.
type RouteDetail struct {
	Route      string     `json:"route"`
	Title      string     `json:"title"`
	PremierDub *time.Time `json:"dubPremier,omitempty"`
	PremierSub *time.Time `json:"premier,omitempty"`
	Websites   Websites   `json:"websites"`
}

type Websites struct {
	Mal     string `json:"mal,omitempty"`
	AniList string `json:"aniList,omitempty"`
}

// Timetables fetches one week's dub timetable. Missing weeks return an empty
// slice and no error.
func (c *Client) Timetables(ctx context.Context, year, week int) ([]domain.TimetableEntry, error) {
	c.logger.Info().Int("year", year).Int("week", week).Msg("fetching dub timetables")
	u := fmt.Sprintf("%s/timetables/dub?year=%d&week=%d", c.baseURL, year, week)

	var entries []domain.TimetableEntry
	found, err := c.getJSON(ctx, u, &entries)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return entries, nil
}

// PreviousWeek fetches last week's timetable once per run: concurrent callers
// share the in-flight request and the result is memoized for the process
// lifetime.
func (c *Client) PreviousWeek(ctx context.Context, now time.Time) ([]domain.TimetableEntry, error) {
	year, week := timeutil.WeekNumber(now)
	week--
	if week < 1 {
		year--
		week = timeutil.WeeksInYear(year)
	}
	key := fmt.Sprintf("week-%d-%d", year, week)
	return c.weeks.Do(key, func() ([]domain.TimetableEntry, error) {
		c.prevMu.Lock()
		if c.prevOK {
			entries := c.prevWeek
			c.prevMu.Unlock()
			return entries, nil
		}
		c.prevMu.Unlock()

		entries, err := c.Timetables(ctx, year, week)
		if err != nil {
			return nil, err
		}
		c.prevMu.Lock()
		c.prevWeek, c.prevOK = entries, true
		c.prevMu.Unlock()
		return entries, nil
	})
}

// Detail fetches the canonical route page, de-duplicated per route within a
// run. A 404 yields ErrRouteNotFound.
func (c *Client) Detail(ctx context.Context, route string) (*RouteDetail, error) {
	return c.details.Do(route, func() (*RouteDetail, error) {
		u := c.baseURL + "/anime/" + url.PathEscape(route)
		var detail RouteDetail
		found, err := c.getJSON(ctx, u, &detail)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, route)
		}
		return &detail, nil
	})
}

// ErrRouteNotFound marks a 404 on the per-route detail endpoint.
var ErrRouteNotFound = fmt.Errorf("animeschedule: route not found")

// getJSON returns found=false on 404 without touching v.
func (c *Client) getJSON(ctx context.Context, u string, v any) (bool, error) {
	found := true
	err := retry.Do(
		func() error {
			release, err := c.gate.Acquire(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			defer release()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if c.token != "" {
				req.Header.Set("Authorization", "Bearer "+c.token)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				found = false
				return nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				c.gate.ReportRateLimited(resp)
				return fmt.Errorf("animeschedule http %d", resp.StatusCode)
			case resp.StatusCode >= 400:
				return retry.Unrecoverable(fmt.Errorf("animeschedule http error: %s", resp.Status))
			}

			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("animeschedule decode: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
	)
	return found, err
}
