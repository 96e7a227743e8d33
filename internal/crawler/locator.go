package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy selects how a Locator expression is evaluated.
type Strategy string

// Supported locator strategies.
const (
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// Locator identifies elements on a page.
type Locator struct {
	Strategy Strategy
	Expr     string
}

// CSS returns a CSS selector locator.
func CSS(expr string) Locator {
	return Locator{Strategy: ByCSS, Expr: expr}
}

// XPath returns an XPath locator.
func XPath(expr string) Locator {
	return Locator{Strategy: ByXPath, Expr: expr}
}

func (l Locator) String() string {
	return string(l.Strategy) + ":" + l.Expr
}

// ParseLocator accepts "css:<selector>", "xpath:<expr>", or a bare expression.
// Bare expressions starting with "/" or "(" are treated as XPath.
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Locator{}, fmt.Errorf("locator is empty")
	}
	if prefix, expr, ok := strings.Cut(raw, ":"); ok {
		switch Strategy(strings.ToLower(strings.TrimSpace(prefix))) {
		case ByCSS:
			return validLocator(CSS(strings.TrimSpace(expr)))
		case ByXPath:
			return validLocator(XPath(strings.TrimSpace(expr)))
		}
	}
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "(") {
		return XPath(raw), nil
	}
	return CSS(raw), nil
}

func validLocator(l Locator) (Locator, error) {
	if l.Expr == "" {
		return Locator{}, fmt.Errorf("locator %q has an empty expression", l.Strategy)
	}
	return l, nil
}

// LocatorSet is a preference-ordered list of locators for one field.
type LocatorSet []Locator

// ParseLocatorSet parses each entry with ParseLocator.
func ParseLocatorSet(raws []string) (LocatorSet, error) {
	out := make(LocatorSet, 0, len(raws))
	for i, raw := range raws {
		loc, err := ParseLocator(raw)
		if err != nil {
			return nil, fmt.Errorf("locator %d: %w", i, err)
		}
		out = append(out, loc)
	}
	return out, nil
}

// Element is a snapshot of a located DOM element. Index is its position
// among the matches of Locator, which accessors use to address it again.
type Element struct {
	Locator Locator
	Index   int
	Text    string
	Attrs   map[string]string
}

// Attr returns the named attribute.
func (e Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Wait bounds a polling lookup.
type Wait struct {
	Timeout time.Duration
	Poll    time.Duration
}

const defaultPoll = 250 * time.Millisecond

// FindFirst returns the first element matched by the earliest locator in set
// that resolves anything. Every locator is tried without waiting on each
// round; rounds repeat until wait.Timeout elapses. A zero timeout performs a
// single round. A locator that fails outright is skipped so the rest of the
// set still applies; its last error is joined to the not-found result.
func FindFirst(ctx context.Context, page PageAccessor, set LocatorSet, wait Wait) (Element, error) {
	if len(set) == 0 {
		return Element{}, fmt.Errorf("%w: no locators configured", ErrElementNotFound)
	}
	poll := wait.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	deadline := time.Now().Add(wait.Timeout)
	var broken error
	for {
		for _, loc := range set {
			el, err := page.Find(ctx, loc, false)
			if err == nil {
				return el, nil
			}
			if ctx.Err() != nil {
				return Element{}, ctx.Err()
			}
			if !errors.Is(err, ErrElementNotFound) {
				broken = fmt.Errorf("locator %s: %w", loc, err)
			}
		}
		if wait.Timeout <= 0 || !time.Now().Before(deadline) {
			return Element{}, errors.Join(fmt.Errorf("%w: %s", ErrElementNotFound, set), broken)
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Element{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s LocatorSet) String() string {
	parts := make([]string, len(s))
	for i, l := range s {
		parts[i] = l.String()
	}
	return strings.Join(parts, " | ")
}
