// Package headless drives a Chrome session through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// Defaults applied when Config leaves a timeout unset.
const (
	DefaultNavigationTimeout = 45 * time.Second
	DefaultElementTimeout    = 15 * time.Second
	DefaultPollInterval      = 250 * time.Millisecond
)

// Config controls the Chrome process and the per-operation timeouts.
type Config struct {
	ExecPath    string
	Headless    bool
	NoSandbox   bool
	UserAgent   string
	UserDataDir string
	WindowWidth int
	// WindowHeight is paired with WindowWidth; either zero keeps Chrome's default.
	WindowHeight      int
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	PollInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = DefaultElementTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// allocatorOptions turns cfg into Chrome flags.
func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	return opts
}

// Session is a crawler.PageAccessor backed by one Chrome tab.
type Session struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// NewSession launches Chrome and opens a tab. The caller must Close it.
func NewSession(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger.Named("headless"),
	}
	// The first Run starts Chrome; it must use the unbounded browser context
	// or the timeout would end the process along with the task.
	if err := chromedp.Run(browserCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	if err := s.run(ctx, cfg.NavigationTimeout, s.setupAction()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("chromedp setup: %w", err)
	}
	return s, nil
}

func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	return chromedp.Run(taskCtx, actions...)
}

// Navigate implements crawler.PageAccessor.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", crawler.ErrNavigation, url, err)
	}
	return nil
}

// CurrentURL implements crawler.PageAccessor.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("%w: read location: %w", crawler.ErrNavigation, err)
	}
	return u, nil
}

// FindAll implements crawler.PageAccessor.
func (s *Session) FindAll(ctx context.Context, loc crawler.Locator) ([]crawler.Element, error) {
	var snaps []elementSnapshot
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(findAllScript(loc), &snaps)); err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	out := make([]crawler.Element, 0, len(snaps))
	for i, snap := range snaps {
		out = append(out, crawler.Element{Locator: loc, Index: i, Text: snap.Text, Attrs: snap.Attrs})
	}
	return out, nil
}

// Find implements crawler.PageAccessor.
func (s *Session) Find(ctx context.Context, loc crawler.Locator, wait bool) (crawler.Element, error) {
	deadline := time.Now().Add(s.cfg.ElementTimeout)
	for {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return crawler.Element{}, err
		}
		if len(els) > 0 {
			return els[0], nil
		}
		if !wait || !time.Now().Before(deadline) {
			return crawler.Element{}, fmt.Errorf("%w: %s", crawler.ErrElementNotFound, loc)
		}
		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return crawler.Element{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Click implements crawler.PageAccessor. It dispatches a real mouse click at
// the element's centre when nothing overlays it and calls element.click()
// otherwise.
func (s *Session) Click(ctx context.Context, el crawler.Element) error {
	var target clickTarget
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(clickTargetScript(el), &target)); err != nil {
		return fmt.Errorf("locate %s[%d]: %w", el.Locator, el.Index, err)
	}
	if !target.Found {
		return fmt.Errorf("%w: %s[%d]", crawler.ErrElementNotFound, el.Locator, el.Index)
	}
	if target.Hit {
		err := s.run(ctx, s.cfg.ElementTimeout, chromedp.MouseClickXY(target.X, target.Y))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("mouse click failed, dispatching", zap.String("locator", el.Locator.String()), zap.Error(err))
	}
	var ok bool
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(dispatchClickScript(el), &ok)); err != nil {
		return fmt.Errorf("dispatch click %s[%d]: %w", el.Locator, el.Index, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s[%d]", crawler.ErrElementNotFound, el.Locator, el.Index)
	}
	return nil
}

// TypeText implements crawler.PageAccessor.
func (s *Session) TypeText(ctx context.Context, el crawler.Element, text string) error {
	var focused bool
	err := s.run(ctx, s.cfg.ElementTimeout,
		chromedp.Evaluate(focusScript(el), &focused),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if !focused {
				return fmt.Errorf("%w: %s[%d] not focusable", crawler.ErrElementNotFound, el.Locator, el.Index)
			}
			return input.InsertText(text).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("type into %s: %w", el.Locator, err)
	}
	return nil
}

// Screenshot implements crawler.PageAccessor.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close tears down the tab and the Chrome process.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.browserCancel()
	s.allocCancel()
	return nil
}

// Factory opens sessions with a fixed configuration.
type Factory struct {
	Config Config
	Logger *zap.Logger
}

// Open implements the runner's session factory.
func (f Factory) Open(ctx context.Context) (crawler.PageAccessor, error) {
	s, err := NewSession(ctx, f.Config, f.Logger)
	if err != nil {
		return nil, errors.Join(crawler.ErrSessionUnusable, err)
	}
	return s, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
