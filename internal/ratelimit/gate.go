// Package ratelimit fronts every outbound request with a token-bucket gate:
// a fixed credit reservoir, bounded in-flight concurrency, minimum request
// spacing and a shared rate-limit cooldown. One Gate guards one upstream API.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Options describe a reservoir in upstream terms: credits refilled per
// interval, a concurrency cap and a minimum spacing between requests.
type Options struct {
	Reservoir      int
	RefillInterval time.Duration
	MaxConcurrent  int
	MinTime        time.Duration
	// DefaultCooldown applies when a 429/5xx response carries no usable
	// Retry-After header.
	DefaultCooldown time.Duration
}

// Gate is safe for concurrent use. All callers share the same cooldown: one
// rate-limited response suspends every subsequent request on the gate rather
// than letting each caller re-trigger backoff independently.
type Gate struct {
	reservoir *rate.Limiter
	spacing   *rate.Limiter
	slots     chan struct{}

	mu            sync.Mutex
	cooldownUntil time.Time
	cooldown      time.Duration
}

func NewGate(opts Options) *Gate {
	if opts.Reservoir <= 0 {
		opts.Reservoir = 90
	}
	if opts.RefillInterval <= 0 {
		opts.RefillInterval = time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.MinTime <= 0 {
		opts.MinTime = 100 * time.Millisecond
	}
	if opts.DefaultCooldown <= 0 {
		opts.DefaultCooldown = 61 * time.Second
	}
	perCredit := opts.RefillInterval / time.Duration(opts.Reservoir)
	return &Gate{
		reservoir: rate.NewLimiter(rate.Every(perCredit), opts.Reservoir),
		spacing:   rate.NewLimiter(rate.Every(opts.MinTime), 1),
		slots:     make(chan struct{}, opts.MaxConcurrent),
		cooldown:  opts.DefaultCooldown,
	}
}

// Acquire blocks until a request credit, the spacing interval, a concurrency
// slot and any active cooldown have all been satisfied. The returned release
// func must be called when the request completes.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.waitCooldown(ctx); err != nil {
		return nil, err
	}
	if err := g.reservoir.Wait(ctx); err != nil {
		return nil, err
	}
	if err := g.spacing.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() { <-g.slots }, nil
}

// ReportRateLimited installs a shared cooldown computed from the response's
// Retry-After header, or the default when absent. Concurrent reports extend
// the window at most once.
func (g *Gate) ReportRateLimited(resp *http.Response) {
	d := g.cooldown
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				d = time.Duration(secs+1) * time.Second
			}
		}
	}
	until := time.Now().Add(d)

	g.mu.Lock()
	if until.After(g.cooldownUntil) {
		g.cooldownUntil = until
	}
	g.mu.Unlock()
}

func (g *Gate) waitCooldown(ctx context.Context) error {
	for {
		g.mu.Lock()
		until := g.cooldownUntil
		g.mu.Unlock()

		wait := time.Until(until)
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
