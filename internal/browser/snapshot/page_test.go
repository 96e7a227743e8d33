package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-crawler/internal/browser/snapshot"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/extract"
	"github.com/JakeFAU/profile-crawler/internal/report"
)

func TestPageNavigationAndLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := snapshot.New(map[string]string{
		"/":     `<main><a class="go" href="/p/x/">x</a><button class="js" data-href="p/y/">y</button></main>`,
		"/p/x/": `<ul><li><span title="t">one</span></li><li><span>two</span></li></ul>`,
		"/p/y/": `<p>y</p>`,
	})

	_, err := p.CurrentURL(ctx)
	require.ErrorIs(t, err, crawler.ErrNavigation)
	require.NoError(t, p.Navigate(ctx, snapshot.BaseURL+"/"))

	link, err := p.Find(ctx, crawler.CSS("a.go"), true)
	require.NoError(t, err)
	require.NoError(t, p.Click(ctx, link))
	u, err := p.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot.BaseURL+"/p/x/", u)

	spans, err := p.FindAll(ctx, crawler.XPath("//li/span"))
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, "one", spans[0].Text)
	title, ok := spans[0].Attr("title")
	assert.True(t, ok)
	assert.Equal(t, "t", title)

	_, err = p.Find(ctx, crawler.CSS("a.go"), false)
	require.ErrorIs(t, err, crawler.ErrElementNotFound)

	require.NoError(t, p.Navigate(ctx, "/"))
	btn, err := p.Find(ctx, crawler.CSS("button.js"), false)
	require.NoError(t, err)
	require.NoError(t, p.Click(ctx, btn))
	u, _ = p.CurrentURL(ctx)
	assert.Equal(t, snapshot.BaseURL+"/p/y/", u)

	require.ErrorIs(t, p.Navigate(ctx, "/missing/"), crawler.ErrNavigation)
	_, err = p.Screenshot(ctx)
	require.ErrorIs(t, err, crawler.ErrUnsupported)
}

func TestPageLoadMoreRevealsBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := snapshot.New(map[string]string{"/": `<ul>
<li>a</li>
<div data-batch="1"><li>b</li></div>
<div data-batch="2"><li>c</li></div>
<button data-action="load-more" data-until="2"><span class="label">more</span></button>
</ul>`})
	require.NoError(t, p.Navigate(ctx, "/"))

	count := func() int {
		els, err := p.FindAll(ctx, crawler.CSS("li"))
		require.NoError(t, err)
		return len(els)
	}
	assert.Equal(t, 1, count())
	more, err := p.Find(ctx, crawler.CSS("button span.label"), false)
	require.NoError(t, err)
	require.NoError(t, p.Click(ctx, more))
	assert.Equal(t, 2, count())
	require.NoError(t, p.Click(ctx, more))
	assert.Equal(t, 3, count())

	_, err = p.Find(ctx, crawler.CSS("button"), false)
	require.ErrorIs(t, err, crawler.ErrElementNotFound)
}

func TestLoadRequiresHTML(t *testing.T) {
	t.Parallel()
	_, err := snapshot.Load(t.TempDir())
	require.Error(t, err)
}

func TestReplayFixtureThroughPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	page, err := snapshot.Load("testdata/profile")
	require.NoError(t, err)

	loc := extract.DefaultLocators()
	session := crawler.NewSession(page, crawler.SessionOptions{FirstPost: loc.FirstPost}, nil, nil)
	require.NoError(t, session.Open(ctx, snapshot.BaseURL+"/"))

	paginator, err := extract.NewPaginator(extract.PaginatorConfig{Items: loc.CommentItems, LoadMore: loc.LoadMore}, nil, nil)
	require.NoError(t, err)
	extractor, err := extract.NewExtractor(loc, paginator, extract.Config{}, nil)
	require.NoError(t, err)

	window, err := crawler.ParseWindow("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assembler := report.NewAssembler(report.EmptyMetadata, nil)
	controller, err := crawler.NewController(page, extractor, assembler, nil, crawler.Options{
		Window:         window,
		PinGrace:       crawler.DefaultPinGrace,
		Next:           loc.Next,
		AdvanceTimeout: 50 * time.Millisecond,
		AdvancePoll:    time.Millisecond,
	}, nil)
	require.NoError(t, err)

	res, err := controller.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.StopDateBoundary, res.Reason)
	assert.Equal(t, 3, res.Recorded)
	assert.Equal(t, 4, res.Visited)

	rows := assembler.Finalize()
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"1", snapshot.BaseURL + "/p/AAA/", "2023-05-01", "08:00:00", "88", "", ""}, rows[0].Record())
	assert.Equal(t, []string{"2", snapshot.BaseURL + "/p/BBB/", "2024-01-20", "18:45:10", "1204", "Sunset at the pier #beach", "Stunning 😍"}, rows[1].Record())
	assert.Equal(t, "नमस्ते", rows[2].Comment)
	assert.Equal(t, "Loaded later #beach", rows[3].Comment)
	assert.Equal(t, []string{"3", snapshot.BaseURL + "/p/CCC/", "2024-01-10", "07:00:00", "Hidden", "Quiet day", ""}, rows[4].Record())
}
