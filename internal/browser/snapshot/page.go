// Package snapshot serves saved HTML documents as a crawler.PageAccessor so
// a crawl can be replayed without a browser.
//
// Clicking an element with href or data-href navigates to that path.
// Clicking an element with data-action="load-more" reveals the next batch:
// elements inside a data-batch="k" ancestor stay hidden until k load-more
// clicks happened on the current document, and elements inside a
// data-until="k" ancestor disappear after k clicks.
package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// BaseURL is the origin every snapshot document is served under.
const BaseURL = "https://snapshot.local"

// Page is an offline crawler.PageAccessor.
type Page struct {
	mu       sync.Mutex
	docs     map[string]string
	current  string
	doc      *goquery.Document
	revealed int
	typed    map[string]string
}

// New serves the given documents keyed by URL path ("/" for the profile).
func New(docs map[string]string) *Page {
	cp := make(map[string]string, len(docs))
	for p, body := range docs {
		cp[normalizePath(p)] = body
	}
	return &Page{docs: cp, typed: make(map[string]string)}
}

// Load reads every *.html file under dir. index.html files map to their
// directory path and other files to their own path, so p/abc/index.html
// serves /p/abc/ and about.html serves /about.html.
func Load(dir string) (*Page, error) {
	docs := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if path.Base(rel) == "index.html" {
			rel = strings.TrimSuffix(rel, "index.html")
		}
		docs["/"+rel] = string(body)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshots from %s: %w", dir, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no html files under %s", dir)
	}
	return New(docs), nil
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Navigate implements crawler.PageAccessor.
func (p *Page) Navigate(_ context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(rawURL)
}

func (p *Page) load(rawURL string) error {
	target, err := p.resolve(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", crawler.ErrNavigation, rawURL, err)
	}
	body, ok := p.docs[target.Path]
	if !ok {
		return fmt.Errorf("%w: no snapshot for %s", crawler.ErrNavigation, target.Path)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: parse %s: %w", crawler.ErrNavigation, target.Path, err)
	}
	p.doc = doc
	p.current = target.String()
	p.revealed = 0
	return nil
}

func (p *Page) resolve(rawURL string) (*url.URL, error) {
	base, _ := url.Parse(BaseURL)
	if p.current != "" {
		if cur, err := url.Parse(p.current); err == nil {
			base = cur
		}
	}
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	target := base.ResolveReference(ref)
	if target.Path == "" {
		target.Path = "/"
	}
	return target, nil
}

// CurrentURL implements crawler.PageAccessor.
func (p *Page) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return "", fmt.Errorf("%w: no document loaded", crawler.ErrNavigation)
	}
	return p.current, nil
}

// Find implements crawler.PageAccessor. Documents are static so wait is ignored.
func (p *Page) Find(ctx context.Context, loc crawler.Locator, _ bool) (crawler.Element, error) {
	els, err := p.FindAll(ctx, loc)
	if err != nil {
		return crawler.Element{}, err
	}
	if len(els) == 0 {
		return crawler.Element{}, fmt.Errorf("%w: %s", crawler.ErrElementNotFound, loc)
	}
	return els[0], nil
}

// FindAll implements crawler.PageAccessor.
func (p *Page) FindAll(_ context.Context, loc crawler.Locator) ([]crawler.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.selectVisible(loc)
	if err != nil {
		return nil, err
	}
	out := make([]crawler.Element, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		out = append(out, crawler.Element{
			Locator: loc,
			Index:   i,
			Text:    strings.TrimSpace(s.Text()),
			Attrs:   attrs(s),
		})
	})
	return out, nil
}

func (p *Page) selectVisible(loc crawler.Locator) (*goquery.Selection, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("%w: no document loaded", crawler.ErrNavigation)
	}
	var sel *goquery.Selection
	switch loc.Strategy {
	case crawler.ByXPath:
		root := p.doc.Nodes[0]
		nodes, err := htmlquery.QueryAll(root, loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("xpath %q: %w", loc.Expr, err)
		}
		elems := nodes[:0]
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				elems = append(elems, n)
			}
		}
		sel = p.doc.FindNodes(elems...)
	default:
		sel = p.doc.Find(loc.Expr)
	}
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return p.visible(s)
	}), nil
}

// visible applies the data-batch and data-until gates of s and its ancestors.
func (p *Page) visible(s *goquery.Selection) bool {
	gated := s.AddSelection(s.ParentsFiltered("[data-batch],[data-until]"))
	ok := true
	gated.EachWithBreak(func(_ int, g *goquery.Selection) bool {
		if v, has := g.Attr("data-batch"); has {
			if k, err := strconv.Atoi(v); err == nil && k > p.revealed {
				ok = false
			}
		}
		if v, has := g.Attr("data-until"); has {
			if k, err := strconv.Atoi(v); err == nil && p.revealed >= k {
				ok = false
			}
		}
		return ok
	})
	return ok
}

func attrs(s *goquery.Selection) map[string]string {
	if len(s.Nodes) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Nodes[0].Attr))
	for _, a := range s.Nodes[0].Attr {
		out[a.Key] = a.Val
	}
	return out
}

// Click implements crawler.PageAccessor.
func (p *Page) Click(_ context.Context, el crawler.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.selectVisible(el.Locator)
	if err != nil {
		return err
	}
	if el.Index < 0 || el.Index >= sel.Length() {
		return fmt.Errorf("%w: %s[%d]", crawler.ErrElementNotFound, el.Locator, el.Index)
	}
	target := sel.Eq(el.Index)
	// Clicks on nested content bubble to the nearest actionable ancestor.
	actionable := target.Closest("[href],[data-href],[data-action]")
	if actionable.Length() == 0 {
		return nil
	}
	if href, ok := actionable.Attr("href"); ok {
		return p.load(href)
	}
	if href, ok := actionable.Attr("data-href"); ok {
		return p.load(href)
	}
	if action, _ := actionable.Attr("data-action"); action == "load-more" {
		p.revealed++
	}
	return nil
}

// TypeText implements crawler.PageAccessor by recording the text.
func (p *Page) TypeText(_ context.Context, el crawler.Element, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[el.Locator.String()] = text
	return nil
}

// Screenshot is not available for static documents.
func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return nil, crawler.ErrUnsupported
}

// Close implements crawler.PageAccessor.
func (p *Page) Close() error {
	return nil
}
