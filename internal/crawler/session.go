package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SessionOptions drive the login and the jump from a profile page to its first post.
type SessionOptions struct {
	LoginURL      string
	Username      string
	Password      string
	UsernameField LocatorSet
	PasswordField LocatorSet
	Submit        LocatorSet
	FirstPost     LocatorSet
	// ElementWait bounds each lookup during bootstrap.
	ElementWait Wait
	// SettleMin and SettleMax bound the pause after submitting the login form.
	SettleMin time.Duration
	SettleMax time.Duration
}

// Session bootstraps a PageAccessor onto the first post of a profile.
type Session struct {
	page   PageAccessor
	opts   SessionOptions
	pauser Pauser
	logger *zap.Logger
}

// NewSession returns a Session over page. pauser and logger may be nil.
func NewSession(page PageAccessor, opts SessionOptions, pauser Pauser, logger *zap.Logger) *Session {
	if pauser == nil {
		pauser = NoPause{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{page: page, opts: opts, pauser: pauser, logger: logger.Named("session")}
}

// Open logs in when credentials are set, loads profileURL, and opens its
// first post. Every failure is reported as ErrSessionUnusable.
func (s *Session) Open(ctx context.Context, profileURL string) error {
	if s.opts.Username != "" {
		if err := s.login(ctx); err != nil {
			return fmt.Errorf("%w: login: %w", ErrSessionUnusable, err)
		}
	}
	if err := s.page.Navigate(ctx, profileURL); err != nil {
		return fmt.Errorf("%w: open profile: %w", ErrSessionUnusable, err)
	}
	profile, err := s.page.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("%w: read profile url: %w", ErrSessionUnusable, err)
	}
	first, err := FindFirst(ctx, s.page, s.opts.FirstPost, s.opts.ElementWait)
	if err != nil {
		return fmt.Errorf("%w: locate first post: %w", ErrSessionUnusable, err)
	}
	if err := s.page.Click(ctx, first); err != nil {
		return fmt.Errorf("%w: open first post: %w", ErrSessionUnusable, err)
	}
	if err := s.waitForURLChange(ctx, profile); err != nil {
		return fmt.Errorf("%w: open first post: %w", ErrSessionUnusable, err)
	}
	s.logger.Info("first post open", zap.String("profile", profileURL))
	return nil
}

func (s *Session) login(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.opts.LoginURL); err != nil {
		return err
	}
	user, err := FindFirst(ctx, s.page, s.opts.UsernameField, s.opts.ElementWait)
	if err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	if err := s.page.TypeText(ctx, user, s.opts.Username); err != nil {
		return fmt.Errorf("type username: %w", err)
	}
	pass, err := FindFirst(ctx, s.page, s.opts.PasswordField, s.opts.ElementWait)
	if err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := s.page.TypeText(ctx, pass, s.opts.Password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}
	submit, err := FindFirst(ctx, s.page, s.opts.Submit, s.opts.ElementWait)
	if err != nil {
		return fmt.Errorf("submit button: %w", err)
	}
	if err := s.page.Click(ctx, submit); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	s.pauser.Pause(ctx, s.opts.SettleMin, s.opts.SettleMax)
	s.logger.Debug("login submitted", zap.String("username", s.opts.Username))
	return ctx.Err()
}

func (s *Session) waitForURLChange(ctx context.Context, from string) error {
	poll := s.opts.ElementWait.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	deadline := time.Now().Add(s.opts.ElementWait.Timeout)
	for {
		current, err := s.page.CurrentURL(ctx)
		if err == nil && current != from {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: still at %s", ErrNavigation, from)
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
