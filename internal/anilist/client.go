// Package anilist implements the metadata/search side of reconciliation: a
// GraphQL-over-HTTP client with typed envelopes, rate limited by a shared
// gate so one 429 suspends every caller.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"anischedule/internal/domain"
	"anischedule/internal/ratelimit"
)

// ErrNotFound is returned when a single-ID lookup resolves to nothing.
var ErrNotFound = errors.New("anilist: media not found")

// mediaFields is the projection every full media query shares. It mirrors
// what reconciliation consumes; nothing more is requested.
const mediaFields = `
id,
idMal,
title { romaji, english, native, userPreferred },
season,
seasonYear,
format,
status,
episodes,
duration,
genres,
isAdult,
synonyms,
nextAiringEpisode { timeUntilAiring, episode },
airingSchedule(page: 1, perPage: 1, notYetAired: true) { nodes { episode, airingAt } },
relations { edges { relationType(version:2), node { id, type, format, seasonYear } } }`

type Client struct {
	endpoint string
	token    string
	client   *http.Client
	gate     *ratelimit.Gate
	logger   zerolog.Logger
}

func NewClient(endpoint, token string, logger zerolog.Logger) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = "https://graphql.anilist.co"
	}
	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		client:   &http.Client{Timeout: 15 * time.Second},
		gate: ratelimit.NewGate(ratelimit.Options{
			Reservoir:       90,
			RefillInterval:  time.Minute,
			MaxConcurrent:   10,
			MinTime:         100 * time.Millisecond,
			DefaultCooldown: 61 * time.Second,
		}),
		logger: logger,
	}
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

type response[T any] struct {
	Data   T          `json:"data"`
	Errors []gqlError `json:"errors,omitempty"`
}

type pageData struct {
	Page struct {
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
		Media []domain.Media `json:"media"`
	} `json:"Page"`
}

type singleData struct {
	Media *domain.Media `json:"Media"`
}

// ByID fetches a single canonical media record.
func (c *Client) ByID(ctx context.Context, id int) (*domain.Media, error) {
	c.logger.Debug().Int("id", id).Msg("searching for id")
	query := fmt.Sprintf(`query($id: Int) { Media(id: $id, type: ANIME) { %s } }`, mediaFields)
	var out response[singleData]
	if err := c.do(ctx, query, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, errors.New(out.Errors[0].Message)
	}
	if out.Data.Media == nil {
		return nil, ErrNotFound
	}
	return out.Data.Media, nil
}

// ByMALID looks a record up through its MyAnimeList id, the direct-ID
// fallback used when title verification fails.
func (c *Client) ByMALID(ctx context.Context, idMal int) (*domain.Media, error) {
	c.logger.Debug().Int("idMal", idMal).Msg("searching for mal id")
	query := fmt.Sprintf(`query($idMal: Int) { Media(idMal: $idMal, type: ANIME) { %s } }`, mediaFields)
	var out response[singleData]
	if err := c.do(ctx, query, map[string]any{"idMal": idMal}, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, errors.New(out.Errors[0].Message)
	}
	if out.Data.Media == nil {
		return nil, ErrNotFound
	}
	return out.Data.Media, nil
}

// ByIDs fetches full records for a list of ids, one page of up to 50.
func (c *Client) ByIDs(ctx context.Context, ids []int) ([]domain.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`query($id: [Int], $page: Int, $perPage: Int) {
		Page(page: $page, perPage: $perPage) {
			pageInfo { hasNextPage },
			media(id_in: $id, type: ANIME) { %s }
		}
	}`, mediaFields)
	var out response[pageData]
	if err := c.do(ctx, query, map[string]any{"id": ids, "page": 1, "perPage": 50}, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, errors.New(out.Errors[0].Message)
	}
	return out.Data.Page.Media, nil
}

// SeasonPage searches by season/year, optionally narrowed to a status.
// Returns the page's media and whether more pages follow.
func (c *Client) SeasonPage(ctx context.Context, season string, year, page int, status string) ([]domain.Media, bool, error) {
	vars := map[string]any{"season": season, "year": year, "page": page, "perPage": 50, "sort": []string{"START_DATE"}}
	if status != "" {
		vars["status"] = []string{status}
	}
	query := fmt.Sprintf(`query($page: Int, $perPage: Int, $season: MediaSeason, $year: Int, $status: [MediaStatus], $sort: [MediaSort]) {
		Page(page: $page, perPage: $perPage) {
			pageInfo { hasNextPage },
			media(type: ANIME, season: $season, seasonYear: $year, status_in: $status, sort: $sort) { %s }
		}
	}`, mediaFields)
	var out response[pageData]
	if err := c.do(ctx, query, vars, &out); err != nil {
		return nil, false, err
	}
	if len(out.Errors) > 0 {
		return nil, false, errors.New(out.Errors[0].Message)
	}
	return out.Data.Page.Media, out.Data.Page.PageInfo.HasNextPage, nil
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(request{Query: compactQuery(query), Variables: variables})
	if err != nil {
		return err
	}

	return retry.Do(
		func() error {
			release, err := c.gate.Acquire(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			defer release()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
			if c.token != "" {
				req.Header.Set("Authorization", "Bearer "+c.token)
			}

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				c.gate.ReportRateLimited(resp)
				return fmt.Errorf("anilist http %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("anilist http error: %s", resp.Status))
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("anilist decode: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
	)
}

// compactQuery strips insignificant whitespace so compound queries stay under
// the upstream complexity budget calculation.
func compactQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
