package crawler

import (
	"context"
	"io"
	"time"
)

// PageAccessor wraps one browser session. Implementations are not safe for
// concurrent use; a session belongs to exactly one crawl.
type PageAccessor interface {
	// Navigate loads url and returns ErrNavigation when it never becomes reachable.
	Navigate(ctx context.Context, url string) error
	// CurrentURL reports the URL of the document currently shown.
	CurrentURL(ctx context.Context) (string, error)
	// Find returns the first match of loc. With wait set it polls until the
	// accessor's element timeout before returning ErrElementNotFound.
	Find(ctx context.Context, loc Locator, wait bool) (Element, error)
	// FindAll returns every current match of loc in document order.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	// Click activates el, falling back to a programmatic dispatch when a
	// direct click is obscured.
	Click(ctx context.Context, el Element) error
	// TypeText focuses el and enters text.
	TypeText(ctx context.Context, el Element, text string) error
	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// FieldExtractor reads individual post fields. Every field is optional.
type FieldExtractor interface {
	ExtractTimestamp(ctx context.Context, page PageAccessor) (time.Time, bool)
	ExtractLikeCount(ctx context.Context, page PageAccessor) LikeCount
	// ExtractCaptionAndComments returns the caption at index 0 ("" when the
	// post has none) followed by top-level comments in display order.
	ExtractCaptionAndComments(ctx context.Context, page PageAccessor) ([]string, error)
}

// RecordSink receives records in traversal order as soon as they are built.
type RecordSink interface {
	Append(ctx context.Context, rec PostRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// MultiSink fans a record out to several sinks in order, stopping at the first error.
type MultiSink []RecordSink

// Append implements RecordSink.
func (m MultiSink) Append(ctx context.Context, rec PostRecord) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, rec.Clone()); err != nil {
			return err
		}
	}
	return nil
}
