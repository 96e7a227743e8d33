package crawler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/crawler/crawlertest"
)

var (
	userField    = crawler.CSS(`input[name="username"]`)
	passField    = crawler.CSS(`input[name="password"]`)
	submitBtn    = crawler.CSS(`button[type="submit"]`)
	firstPost    = crawler.CSS(`main a[href*="/p/"]`)
	loginURL     = "https://www.instagram.com/accounts/login/"
	profileURL   = "https://www.instagram.com/someone/"
	firstPostURL = "https://www.instagram.com/p/first/"
)

func sessionOptions(username string) crawler.SessionOptions {
	return crawler.SessionOptions{
		LoginURL:      loginURL,
		Username:      username,
		Password:      "hunter2",
		UsernameField: crawler.LocatorSet{userField},
		PasswordField: crawler.LocatorSet{passField},
		Submit:        crawler.LocatorSet{submitBtn},
		FirstPost:     crawler.LocatorSet{crawler.CSS("article a"), firstPost},
		ElementWait:   crawler.Wait{Timeout: 10 * time.Millisecond, Poll: time.Millisecond},
	}
}

func sessionBrowser() *crawlertest.Browser {
	b := crawlertest.NewBrowser()
	b.AddPage(loginURL, crawlertest.NewPage().
		Add(userField, crawlertest.Node{}).
		Add(passField, crawlertest.Node{}).
		Add(submitBtn, crawlertest.Node{Text: "Log in"}))
	b.AddPage(profileURL, crawlertest.NewPage().
		Add(firstPost, crawlertest.Node{Href: firstPostURL}))
	b.AddPage(firstPostURL, crawlertest.NewPage())
	return b
}

func TestSessionOpenLogsInAndOpensFirstPost(t *testing.T) {
	t.Parallel()
	b := sessionBrowser()
	s := crawler.NewSession(b, sessionOptions("someone"), nil, nil)

	require.NoError(t, s.Open(context.Background(), profileURL))

	current, err := b.CurrentURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstPostURL, current)
	assert.Equal(t, "someone", b.Typed(userField))
	assert.Equal(t, "hunter2", b.Typed(passField))
	require.Len(t, b.Clicks(), 2)
	assert.Equal(t, submitBtn, b.Clicks()[0].Locator)
}

func TestSessionOpenSkipsLoginWithoutCredentials(t *testing.T) {
	t.Parallel()
	b := sessionBrowser()
	s := crawler.NewSession(b, sessionOptions(""), nil, nil)

	require.NoError(t, s.Open(context.Background(), profileURL))
	assert.Empty(t, b.Typed(userField))
	assert.Len(t, b.Clicks(), 1)
}

func TestSessionOpenFailuresAreUnusable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		setup func(b *crawlertest.Browser)
	}{
		{
			name:  "navigation",
			setup: func(b *crawlertest.Browser) { b.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED") },
		},
		{
			name:  "no login form",
			setup: func(b *crawlertest.Browser) { b.AddPage(loginURL, crawlertest.NewPage()) },
		},
		{
			name:  "no posts",
			setup: func(b *crawlertest.Browser) { b.AddPage(profileURL, crawlertest.NewPage()) },
		},
		{
			name: "first post does not open",
			setup: func(b *crawlertest.Browser) {
				b.AddPage(profileURL, crawlertest.NewPage().Add(firstPost, crawlertest.Node{}))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := sessionBrowser()
			tc.setup(b)
			s := crawler.NewSession(b, sessionOptions("someone"), nil, nil)
			err := s.Open(context.Background(), profileURL)
			require.ErrorIs(t, err, crawler.ErrSessionUnusable)
		})
	}
}
