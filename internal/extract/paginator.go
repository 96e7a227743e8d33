package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

// DefaultMaxRounds bounds the load-more clicks spent on one comment list.
const DefaultMaxRounds = 50

// defaultStallRounds is how many consecutive clicks may reveal nothing before giving up.
const defaultStallRounds = 3

// CommentPaginator exhausts a comment list.
type CommentPaginator interface {
	CollectAll(ctx context.Context, page crawler.PageAccessor, container crawler.Element) ([]string, error)
}

// PaginatorConfig tunes the load-more loop.
type PaginatorConfig struct {
	Items    crawler.LocatorSet
	LoadMore crawler.LocatorSet
	// MaxRounds bounds load-more clicks.
	MaxRounds int
	// StallRounds bounds consecutive clicks that reveal nothing new.
	StallRounds int
	PauseMin    time.Duration
	PauseMax    time.Duration
}

// Paginator clicks "load more" until the comment count stops growing.
type Paginator struct {
	cfg    PaginatorConfig
	pauser crawler.Pauser
	logger *zap.Logger
}

// NewPaginator validates cfg. pauser and logger may be nil.
func NewPaginator(cfg PaginatorConfig, pauser crawler.Pauser, logger *zap.Logger) (*Paginator, error) {
	if len(cfg.Items) == 0 {
		return nil, fmt.Errorf("comment item locators are required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.StallRounds <= 0 {
		cfg.StallRounds = defaultStallRounds
	}
	if pauser == nil {
		pauser = crawler.NoPause{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{cfg: cfg, pauser: pauser, logger: logger.Named("paginator")}, nil
}

// CollectAll returns the texts of every comment reachable by load-more
// clicks, in display order. Each pass appends only the items beyond the
// previous count, so the result grows monotonically and repeated calls on
// an exhausted list return the same sequence. The container argument only
// proves the list is present; item locators are evaluated page-wide.
func (p *Paginator) CollectAll(ctx context.Context, page crawler.PageAccessor, _ crawler.Element) ([]string, error) {
	var (
		collected []string
		seen      int
		stalled   int
		clicks    int
		items     crawler.Locator
		resolved  bool
	)
	defer func() { metrics.ObserveLoadMoreRounds(clicks) }()

	for {
		if err := ctx.Err(); err != nil {
			return collected, err
		}
		if !resolved {
			items, resolved = p.resolveItems(ctx, page)
		}
		grew := false
		if resolved {
			els, err := page.FindAll(ctx, items)
			if err != nil {
				return collected, fmt.Errorf("count comments: %w", err)
			}
			if len(els) > seen {
				for _, el := range els[seen:] {
					collected = append(collected, el.Text)
				}
				seen = len(els)
				grew = true
			}
		}

		more, err := crawler.FindFirst(ctx, page, p.cfg.LoadMore, crawler.Wait{})
		if err != nil {
			// No control left to reveal anything.
			return collected, nil
		}
		if grew {
			stalled = 0
		} else if clicks > 0 {
			stalled++
			if stalled >= p.cfg.StallRounds {
				p.logger.Debug("load more revealed nothing", zap.Int("clicks", clicks), zap.Int("comments", seen))
				return collected, nil
			}
		}
		if clicks >= p.cfg.MaxRounds {
			p.logger.Info("load-more budget exhausted", zap.Int("clicks", clicks), zap.Int("comments", seen))
			return collected, nil
		}
		if err := page.Click(ctx, more); err != nil {
			p.logger.Debug("load more not clickable", zap.Error(err))
			return collected, nil
		}
		clicks++
		p.pauser.Pause(ctx, p.cfg.PauseMin, p.cfg.PauseMax)
	}
}

// resolveItems picks the first item locator that currently matches anything.
func (p *Paginator) resolveItems(ctx context.Context, page crawler.PageAccessor) (crawler.Locator, bool) {
	for _, loc := range p.cfg.Items {
		els, err := page.FindAll(ctx, loc)
		if err == nil && len(els) > 0 {
			return loc, true
		}
	}
	return crawler.Locator{}, false
}
