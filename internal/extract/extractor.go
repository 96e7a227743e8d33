package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// Config bounds how long the extractor waits for each field.
type Config struct {
	// FieldWait applies to the timestamp, which gates on the post body loading.
	FieldWait crawler.Wait
	// LikeWait applies to the like counter. It is read after the timestamp,
	// so a short wait is enough and a hidden counter costs little.
	LikeWait crawler.Wait
	// ContainerWait applies to the comment list, which loads after the post body.
	ContainerWait crawler.Wait
}

// Extractor implements crawler.FieldExtractor over a set of locators.
type Extractor struct {
	loc       Locators
	cfg       Config
	paginator CommentPaginator
	logger    *zap.Logger
}

// NewExtractor returns an extractor using paginator for comment lists.
func NewExtractor(loc Locators, paginator CommentPaginator, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if paginator == nil {
		return nil, fmt.Errorf("comment paginator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{loc: loc, cfg: cfg, paginator: paginator, logger: logger.Named("extractor")}, nil
}

// ExtractTimestamp reads the first datetime attribute any timestamp locator exposes.
func (e *Extractor) ExtractTimestamp(ctx context.Context, page crawler.PageAccessor) (time.Time, bool) {
	el, err := crawler.FindFirst(ctx, page, e.loc.Timestamp, e.cfg.FieldWait)
	if err != nil {
		e.logger.Debug("timestamp absent", zap.Error(err))
		return time.Time{}, false
	}
	raw, ok := el.Attr("datetime")
	if !ok {
		raw = el.Text
	}
	t, ok := ParseTimestamp(raw)
	if !ok {
		e.logger.Debug("timestamp unparseable", zap.String("raw", raw))
	}
	return t, ok
}

// ExtractLikeCount returns Hidden when no like element exists and Unknown
// when one exists but its text is not a number.
func (e *Extractor) ExtractLikeCount(ctx context.Context, page crawler.PageAccessor) crawler.LikeCount {
	el, err := crawler.FindFirst(ctx, page, e.loc.LikeCount, e.cfg.LikeWait)
	if err != nil {
		return crawler.HiddenLikes()
	}
	n, ok := ParseLikeCount(el.Text)
	if !ok {
		e.logger.Debug("like count unparseable", zap.String("text", el.Text))
		return crawler.UnknownLikes()
	}
	return crawler.KnownLikes(n)
}

// ExtractCaptionAndComments returns the caption ("" when absent) followed by
// every top-level comment. The comment list container must appear within
// ContainerWait or an error wrapping crawler.ErrElementNotFound is returned.
func (e *Extractor) ExtractCaptionAndComments(ctx context.Context, page crawler.PageAccessor) ([]string, error) {
	container, err := crawler.FindFirst(ctx, page, e.loc.CommentContainer, e.cfg.ContainerWait)
	if err != nil {
		return nil, fmt.Errorf("comment list: %w", err)
	}
	caption := ""
	if el, err := crawler.FindFirst(ctx, page, e.loc.Caption, crawler.Wait{}); err == nil {
		caption = CleanText(el.Text)
	}
	raw, err := e.paginator.CollectAll(ctx, page, container)
	if err != nil {
		return nil, fmt.Errorf("collect comments: %w", err)
	}
	out := make([]string, 0, len(raw)+1)
	out = append(out, caption)
	for i, text := range raw {
		text = CleanText(text)
		if text == "" {
			continue
		}
		// Some layouts render the caption as the first list item.
		if i == 0 && text == caption {
			continue
		}
		out = append(out, text)
	}
	return out, nil
}
