package crawler

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

// Defaults applied by NewController when options are left zero.
const (
	DefaultPinGrace        = 3
	DefaultAdvanceTimeout  = 15 * time.Second
	DefaultAdvancePoll     = 250 * time.Millisecond
	DefaultVisitedCapacity = 4096
)

// Options tune a single walk.
type Options struct {
	RunID   string
	Profile string
	Window  Window
	// PinGrace is the number of leading posts that never trigger the date
	// boundary, since pinned posts may be older than the posts after them.
	// Zero selects DefaultPinGrace; a negative value disables the grace.
	PinGrace int
	// MaxPosts caps the number of visited posts; 0 means unbounded.
	MaxPosts int
	// Next locates the control that advances to the following post.
	Next LocatorSet
	// AdvanceTimeout bounds the wait for the next control and for the URL change after clicking it.
	AdvanceTimeout time.Duration
	AdvancePoll    time.Duration
	PostPauseMin   time.Duration
	PostPauseMax   time.Duration
	// VisitedCapacity bounds the LRU of post URLs used to detect revisits.
	VisitedCapacity int
}

func (o Options) withDefaults() Options {
	switch {
	case o.PinGrace == 0:
		o.PinGrace = DefaultPinGrace
	case o.PinGrace < 0:
		o.PinGrace = 0
	}
	if o.AdvanceTimeout <= 0 {
		o.AdvanceTimeout = DefaultAdvanceTimeout
	}
	if o.AdvancePoll <= 0 {
		o.AdvancePoll = DefaultAdvancePoll
	}
	if o.VisitedCapacity <= 0 {
		o.VisitedCapacity = DefaultVisitedCapacity
	}
	return o
}

// Controller walks a profile post by post, starting from the post the
// page currently shows.
type Controller struct {
	page      PageAccessor
	extractor FieldExtractor
	sink      RecordSink
	pauser    Pauser
	opts      Options
	logger    *zap.Logger

	visited *lru.Cache[string, int]
	state   CrawlState
}

// NewController wires a walk. pauser and logger may be nil.
func NewController(page PageAccessor, extractor FieldExtractor, sink RecordSink, pauser Pauser, opts Options, logger *zap.Logger) (*Controller, error) {
	if page == nil {
		return nil, fmt.Errorf("page accessor is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("field extractor is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("record sink is required")
	}
	if len(opts.Next) == 0 {
		return nil, fmt.Errorf("next-post locators are required")
	}
	if pauser == nil {
		pauser = NoPause{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	visited, err := lru.New[string, int](opts.VisitedCapacity)
	if err != nil {
		return nil, fmt.Errorf("visited cache: %w", err)
	}
	return &Controller{
		page:      page,
		extractor: extractor,
		sink:      sink,
		pauser:    pauser,
		opts:      opts,
		logger:    logger.Named("controller").With(zap.String("profile", opts.Profile)),
		visited:   visited,
		state:     CrawlState{State: StateNotStarted},
	}, nil
}

// State returns the controller's current bookkeeping.
func (c *Controller) State() CrawlState {
	return c.state
}

// Run walks until a stop condition holds. Records already handed to the
// sink stay there whatever the outcome. The returned error is non-nil only
// for a failing sink or a done context; navigation trouble ends the walk
// with a StopReason instead.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{}
	finish := func(reason StopReason, err error) (Result, error) {
		c.state.State = StateTerminated
		res.Reason = reason
		res.Visited = c.state.Visited
		res.Duration = time.Since(start)
		metrics.ObserveCrawlStop(string(reason), res.Duration)
		c.logger.Info("walk finished",
			zap.String("reason", string(reason)),
			zap.Int("visited", res.Visited),
			zap.Int("recorded", res.Recorded),
			zap.Duration("duration", res.Duration))
		return res, err
	}

	current, err := c.currentPost(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return finish(StopCanceled, ctx.Err())
		}
		c.logger.Warn("cannot read first post url", zap.Error(err))
		return finish(StopNavigation, nil)
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(StopCanceled, err)
		}
		if _, seen := c.visited.Get(current); seen {
			c.logger.Info("next post already visited", zap.String("url", current))
			return finish(StopRevisit, nil)
		}
		c.arrive(current)
		n := c.state.Visited

		posted, known := c.extractor.ExtractTimestamp(ctx, c.page)
		c.state.InWindow = false
		c.state.BelowStart = false
		if known {
			date := DateOf(posted)
			c.state.InWindow = c.opts.Window.Contains(date)
			c.state.BelowStart = c.opts.Window.BeforeStart(date)
		} else {
			metrics.ObserveFieldAbsent("timestamp")
		}
		if c.state.BelowStart && n > c.opts.PinGrace {
			c.logger.Info("post predates window",
				zap.Int("post_index", n),
				zap.String("url", current),
				zap.Time("posted_at", posted))
			return finish(StopDateBoundary, nil)
		}

		rec := PostRecord{
			RunID:    c.opts.RunID,
			Profile:  c.opts.Profile,
			Index:    n,
			URL:      current,
			Likes:    c.extractor.ExtractLikeCount(ctx, c.page),
			InWindow: c.state.InWindow,
		}
		if !rec.Likes.IsKnown() {
			metrics.ObserveFieldAbsent("likes")
		}
		if known {
			ts := posted.UTC()
			rec.PostedAt = &ts
		}
		if c.state.InWindow {
			c.collectText(ctx, &rec)
		}

		if err := c.sink.Append(ctx, rec.Clone()); err != nil {
			c.logger.Error("sink rejected record", zap.Int("post_index", n), zap.Error(err))
			return finish(StopSinkError, fmt.Errorf("append record %d: %w", n, err))
		}
		res.Recorded++
		res.Comments += len(rec.Comments)
		metrics.ObservePostRecorded(current, rec.InWindow, len(rec.Comments))
		c.logger.Debug("post recorded",
			zap.Int("post_index", n),
			zap.String("url", current),
			zap.Bool("in_window", rec.InWindow),
			zap.String("likes", rec.Likes.String()),
			zap.Int("comments", len(rec.Comments)))

		if c.opts.MaxPosts > 0 && n >= c.opts.MaxPosts {
			return finish(StopMaxPosts, nil)
		}

		next, reason := c.advance(ctx, current)
		if reason != StopNone {
			if reason == StopCanceled {
				return finish(reason, ctx.Err())
			}
			return finish(reason, nil)
		}
		c.pauser.Pause(ctx, c.opts.PostPauseMin, c.opts.PostPauseMax)
		current = next
	}
}

func (c *Controller) arrive(url string) {
	c.state.State = StateAtPost
	c.state.Visited++
	c.visited.Add(url, c.state.Visited)
	metrics.ObservePostVisited(url)
}

func (c *Controller) collectText(ctx context.Context, rec *PostRecord) {
	texts, err := c.extractor.ExtractCaptionAndComments(ctx, c.page)
	if err != nil {
		c.logger.Warn("caption and comments unavailable",
			zap.Int("post_index", rec.Index),
			zap.String("url", rec.URL),
			zap.Error(err))
		metrics.ObserveFieldAbsent("comments")
		return
	}
	if len(texts) == 0 {
		return
	}
	if texts[0] != "" {
		caption := texts[0]
		rec.Caption = &caption
	} else {
		metrics.ObserveFieldAbsent("caption")
	}
	rec.Comments = append([]string(nil), texts[1:]...)
}

// advance clicks the next control and waits for the post URL to change.
func (c *Controller) advance(ctx context.Context, from string) (string, StopReason) {
	wait := Wait{Timeout: c.opts.AdvanceTimeout, Poll: c.opts.AdvancePoll}
	el, err := FindFirst(ctx, c.page, c.opts.Next, wait)
	if err != nil {
		if ctx.Err() != nil {
			return "", StopCanceled
		}
		c.logger.Info("no next control", zap.String("url", from), zap.Error(err))
		return "", StopNoNext
	}
	if err := c.page.Click(ctx, el); err != nil {
		if ctx.Err() != nil {
			return "", StopCanceled
		}
		c.logger.Warn("next control not clickable", zap.String("url", from), zap.Error(err))
		return "", StopNoNext
	}

	deadline := time.Now().Add(c.opts.AdvanceTimeout)
	for {
		next, err := c.currentPost(ctx)
		if err == nil && next != from {
			return next, StopNone
		}
		if err != nil {
			c.logger.Debug("reading url after advance", zap.Error(err))
		}
		if !time.Now().Before(deadline) {
			c.logger.Warn("post did not change after next", zap.String("url", from))
			return "", StopStalled
		}
		timer := time.NewTimer(c.opts.AdvancePoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", StopCanceled
		case <-timer.C:
		}
	}
}

func (c *Controller) currentPost(ctx context.Context) (string, error) {
	raw, err := c.page.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	return CanonicalURL(raw)
}
