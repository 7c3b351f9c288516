// Package maldubs consumes the hosted MAL-Dubs list: MyAnimeList ids with a
// confirmed or partially complete English dub. Every schedule entry must
// appear in it; anything else is upstream noise.
package maldubs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"anischedule/internal/ratelimit"
)

type List struct {
	Dubbed     []int `json:"dubbed"`
	Incomplete []int `json:"incomplete"`
}

// IsDub reports whether idMal has a confirmed or incomplete dub.
func (l *List) IsDub(idMal int) bool {
	if l == nil || idMal == 0 {
		return false
	}
	for _, id := range l.Dubbed {
		if id == idMal {
			return true
		}
	}
	for _, id := range l.Incomplete {
		if id == idMal {
			return true
		}
	}
	return false
}

type Client struct {
	url    string
	client *http.Client
	logger zerolog.Logger
	fetch  ratelimit.Single[*List]
}

func NewClient(url string, logger zerolog.Logger) *Client {
	if strings.TrimSpace(url) == "" {
		url = "https://raw.githubusercontent.com/MAL-Dubs/MAL-Dubs/main/data/dubInfo.json"
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 20 * time.Second},
		logger: logger,
	}
}

// Fetch downloads the list fresh, with a cache-busting timestamp the way the
// hosting CDN expects. Concurrent callers share one request.
func (c *Client) Fetch(ctx context.Context) (*List, error) {
	return c.fetch.Do("dub-list", func() (*List, error) {
		var list *List
		err := retry.Do(
			func() error {
				u := fmt.Sprintf("%s?timestamp=%d", c.url, time.Now().UnixMilli())
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
				if err != nil {
					return retry.Unrecoverable(err)
				}
				resp, err := c.client.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				if resp.StatusCode >= 400 {
					return fmt.Errorf("dub list http error: %s", resp.Status)
				}
				list = &List{}
				if err := json.NewDecoder(resp.Body).Decode(list); err != nil {
					return retry.Unrecoverable(fmt.Errorf("dub list decode: %w", err))
				}
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(2*time.Second),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return nil, err
		}
		c.logger.Info().Int("dubbed", len(list.Dubbed)).Int("incomplete", len(list.Incomplete)).Msg("fetched dub list")
		return list, nil
	})
}
