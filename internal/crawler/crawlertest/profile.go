package crawlertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// NextLocator is the next-post control on pages built by Profile.
var NextLocator = crawler.CSS("button.next")

// Post describes one post of a fake profile.
type Post struct {
	URL string
	// Date is RFC 3339 or YYYY-MM-DD; empty means the timestamp is absent.
	Date  string
	Likes crawler.LikeCount
	// Texts is what the extractor returns for caption and comments.
	Texts []string
	// TextErr is returned instead of Texts.
	TextErr error
	// NoNext drops the next control from this post.
	NoNext bool
	// NextHref overrides where the next control leads.
	NextHref string
}

// Profile builds a browser showing posts[0] with next controls chained in
// order, plus an Extractor serving each post's fields by URL.
func Profile(posts ...Post) (*Browser, *Extractor) {
	b := NewBrowser()
	ex := NewExtractor()
	for i, p := range posts {
		page := NewPage()
		href := p.NextHref
		if href == "" && i+1 < len(posts) {
			href = posts[i+1].URL
		}
		if !p.NoNext && href != "" {
			page.Add(NextLocator, Node{Text: "Next", Href: href})
		}
		b.AddPage(p.URL, page)
		ex.Set(p.URL, p)
	}
	if len(posts) > 0 {
		b.SetCurrent(posts[0].URL)
	}
	return b, ex
}

// Extractor is a crawler.FieldExtractor that looks fields up by the page's current URL.
type Extractor struct {
	mu        sync.Mutex
	posts     map[string]Post
	textCalls map[string]int
}

// NewExtractor returns an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{posts: make(map[string]Post), textCalls: make(map[string]int)}
}

// Set registers p under url.
func (e *Extractor) Set(url string, p Post) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.posts[url] = p
}

func (e *Extractor) lookup(ctx context.Context, page crawler.PageAccessor) (Post, bool) {
	url, err := page.CurrentURL(ctx)
	if err != nil {
		return Post{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.posts[url]
	return p, ok
}

// ExtractTimestamp implements crawler.FieldExtractor.
func (e *Extractor) ExtractTimestamp(ctx context.Context, page crawler.PageAccessor) (time.Time, bool) {
	p, ok := e.lookup(ctx, page)
	if !ok || p.Date == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, p.Date); err == nil {
		return t, true
	}
	t, err := time.Parse(time.DateOnly, p.Date)
	if err != nil {
		panic(fmt.Sprintf("crawlertest: bad date %q", p.Date))
	}
	return t.Add(12 * time.Hour), true
}

// ExtractLikeCount implements crawler.FieldExtractor.
func (e *Extractor) ExtractLikeCount(ctx context.Context, page crawler.PageAccessor) crawler.LikeCount {
	p, ok := e.lookup(ctx, page)
	if !ok {
		return crawler.HiddenLikes()
	}
	return p.Likes
}

// ExtractCaptionAndComments implements crawler.FieldExtractor.
func (e *Extractor) ExtractCaptionAndComments(ctx context.Context, page crawler.PageAccessor) ([]string, error) {
	url, _ := page.CurrentURL(ctx)
	e.mu.Lock()
	e.textCalls[url]++
	e.mu.Unlock()
	p, ok := e.lookup(ctx, page)
	if !ok {
		return nil, fmt.Errorf("%w: unknown post", crawler.ErrElementNotFound)
	}
	if p.TextErr != nil {
		return nil, p.TextErr
	}
	return append([]string(nil), p.Texts...), nil
}

// TextCalls reports how often caption and comments were requested for url.
func (e *Extractor) TextCalls(url string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.textCalls[url]
}

// Sink collects records in memory.
type Sink struct {
	mu      sync.Mutex
	records []crawler.PostRecord
	// Err, when set, is returned by Append.
	Err error
}

// Append implements crawler.RecordSink.
func (s *Sink) Append(_ context.Context, rec crawler.PostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of the collected records.
func (s *Sink) Records() []crawler.PostRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.PostRecord(nil), s.records...)
}
