// Package crawlertest provides scriptable fakes for crawler collaborators.
package crawlertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// Node is one fake DOM element.
type Node struct {
	Text  string
	Attrs map[string]string
	// Batch hides the node until the page's load-more control was clicked Batch times.
	Batch int
	// HideAfter hides the node once the load-more control was clicked HideAfter times; 0 never hides.
	HideAfter int
	// Href makes a click navigate to that URL.
	Href string
	// LoadsMore makes a click reveal the next batch on the same page.
	LoadsMore bool
	// ClickErr is returned when the node is clicked.
	ClickErr error
}

// Page is a fake document keyed by locator.
type Page struct {
	nodes    map[crawler.Locator][]Node
	revealed int
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{nodes: make(map[crawler.Locator][]Node)}
}

// Add appends nodes matched by loc.
func (p *Page) Add(loc crawler.Locator, nodes ...Node) *Page {
	p.nodes[loc] = append(p.nodes[loc], nodes...)
	return p
}

func (p *Page) visible(loc crawler.Locator) []Node {
	var out []Node
	for _, n := range p.nodes[loc] {
		if n.Batch <= p.revealed && (n.HideAfter == 0 || p.revealed < n.HideAfter) {
			out = append(out, n)
		}
	}
	return out
}

// Browser is an in-memory crawler.PageAccessor.
type Browser struct {
	mu      sync.Mutex
	pages   map[string]*Page
	current string

	// NavigateErr, when set, fails every Navigate call.
	NavigateErr error
	// URLErr, when set, fails every CurrentURL call.
	URLErr error
	// ScreenshotData is returned by Screenshot; nil yields ErrUnsupported.
	ScreenshotData []byte

	clicks   []crawler.Element
	typed    map[string]string
	findAlls int
	closed   bool
}

// NewBrowser returns a browser with no pages.
func NewBrowser() *Browser {
	return &Browser{pages: make(map[string]*Page), typed: make(map[string]string)}
}

// AddPage registers p under url.
func (b *Browser) AddPage(url string, p *Page) *Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[url] = p
	return b
}

// SetCurrent shows url without navigating.
func (b *Browser) SetCurrent(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = url
}

// Navigate implements crawler.PageAccessor.
func (b *Browser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NavigateErr != nil {
		return fmt.Errorf("%w: %w", crawler.ErrNavigation, b.NavigateErr)
	}
	return b.goTo(url)
}

func (b *Browser) goTo(url string) error {
	p, ok := b.pages[url]
	if !ok {
		return fmt.Errorf("%w: %s not found", crawler.ErrNavigation, url)
	}
	p.revealed = 0
	b.current = url
	return nil
}

// CurrentURL implements crawler.PageAccessor.
func (b *Browser) CurrentURL(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.URLErr != nil {
		return "", b.URLErr
	}
	if b.current == "" {
		return "", fmt.Errorf("%w: no document loaded", crawler.ErrNavigation)
	}
	return b.current, nil
}

// Find implements crawler.PageAccessor. The fake never waits.
func (b *Browser) Find(ctx context.Context, loc crawler.Locator, _ bool) (crawler.Element, error) {
	els, err := b.FindAll(ctx, loc)
	if err != nil {
		return crawler.Element{}, err
	}
	if len(els) == 0 {
		return crawler.Element{}, fmt.Errorf("%w: %s", crawler.ErrElementNotFound, loc)
	}
	return els[0], nil
}

// FindAll implements crawler.PageAccessor.
func (b *Browser) FindAll(_ context.Context, loc crawler.Locator) ([]crawler.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findAlls++
	p, ok := b.pages[b.current]
	if !ok {
		return nil, nil
	}
	nodes := p.visible(loc)
	out := make([]crawler.Element, 0, len(nodes))
	for i, n := range nodes {
		out = append(out, crawler.Element{Locator: loc, Index: i, Text: n.Text, Attrs: n.Attrs})
	}
	return out, nil
}

// Click implements crawler.PageAccessor.
func (b *Browser) Click(_ context.Context, el crawler.Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pages[b.current]
	if !ok {
		return fmt.Errorf("%w: no document loaded", crawler.ErrElementNotFound)
	}
	nodes := p.visible(el.Locator)
	if el.Index < 0 || el.Index >= len(nodes) {
		return fmt.Errorf("%w: %s[%d]", crawler.ErrElementNotFound, el.Locator, el.Index)
	}
	n := nodes[el.Index]
	if n.ClickErr != nil {
		return n.ClickErr
	}
	b.clicks = append(b.clicks, el)
	switch {
	case n.Href != "":
		return b.goTo(n.Href)
	case n.LoadsMore:
		p.revealed++
	}
	return nil
}

// TypeText implements crawler.PageAccessor.
func (b *Browser) TypeText(_ context.Context, el crawler.Element, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.typed[el.Locator.String()] = text
	return nil
}

// Screenshot implements crawler.PageAccessor.
func (b *Browser) Screenshot(context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ScreenshotData == nil {
		return nil, crawler.ErrUnsupported
	}
	return append([]byte(nil), b.ScreenshotData...), nil
}

// Close implements crawler.PageAccessor.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Clicks returns the elements clicked so far.
func (b *Browser) Clicks() []crawler.Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]crawler.Element(nil), b.clicks...)
}

// Typed returns the text entered into elements matched by loc.
func (b *Browser) Typed(loc crawler.Locator) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typed[loc.String()]
}

// FindAllCalls counts FindAll invocations, including those made by Find.
func (b *Browser) FindAllCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findAlls
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
