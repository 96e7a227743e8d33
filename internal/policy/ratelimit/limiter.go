// Package ratelimit caps how often a crawl acts on the page.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

// Config holds the action budget.
type Config struct {
	// PerMinute is the sustained number of paced actions; 0 or less is unlimited.
	PerMinute float64
	// Burst is how many actions may run back to back; defaults to 1.
	Burst int
}

// Pauser waits for an action token and then delegates to the wrapped
// pauser, so jittered pauses never exceed the configured rate.
type Pauser struct {
	limiter *rate.Limiter
	next    crawler.Pauser
}

// New wraps next. A nil next only applies the rate.
func New(cfg Config, next crawler.Pauser) *Pauser {
	limit := rate.Inf
	if cfg.PerMinute > 0 {
		limit = rate.Limit(cfg.PerMinute / 60)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if next == nil {
		next = crawler.NoPause{}
	}
	return &Pauser{limiter: rate.NewLimiter(limit, burst), next: next}
}

// Pause implements crawler.Pauser. It returns early when ctx is done.
func (p *Pauser) Pause(ctx context.Context, minDelay, maxDelay time.Duration) {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	p.next.Pause(ctx, minDelay, maxDelay)
}
