// Package report turns post records into the sparse CSV row layout.
package report

import (
	"fmt"
	"strconv"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// Header is the CSV column order.
var Header = []string{"Post", "URL", "Date", "Time", "Likes", "Caption", "Comments"}

// OutputRow is one CSV line. Post-level fields are set only on the first row
// of each post; continuation rows carry just the comment.
type OutputRow struct {
	Post    int    `json:"post,omitempty"`
	URL     string `json:"url,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
	Likes   string `json:"likes,omitempty"`
	Caption string `json:"caption,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// IsContinuation reports whether the row belongs to the post above it.
func (r OutputRow) IsContinuation() bool {
	return r.Post == 0 && r.URL == ""
}

// Record renders the row in Header order.
func (r OutputRow) Record() []string {
	post := ""
	if r.Post > 0 {
		post = strconv.Itoa(r.Post)
	}
	return []string{post, r.URL, r.Date, r.Time, r.Likes, r.Caption, r.Comment}
}

// EmptyPolicy decides what a post without comments contributes.
type EmptyPolicy string

// Empty-comment policies.
const (
	// EmptyMetadata emits one row with the post fields and a blank comment.
	EmptyMetadata EmptyPolicy = "metadata"
	// EmptySkip emits nothing for the post.
	EmptySkip EmptyPolicy = "skip"
)

// ParseEmptyPolicy accepts "metadata", "skip", or "" (metadata).
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch EmptyPolicy(s) {
	case "", EmptyMetadata:
		return EmptyMetadata, nil
	case EmptySkip:
		return EmptySkip, nil
	}
	return "", fmt.Errorf("unknown empty policy %q (want metadata or skip)", s)
}

// Expand renders rec as rows: one per comment, with the post fields on the first.
func Expand(rec crawler.PostRecord, policy EmptyPolicy) []OutputRow {
	if len(rec.Comments) == 0 && policy == EmptySkip {
		return nil
	}
	first := OutputRow{
		Post:  rec.Index,
		URL:   rec.URL,
		Date:  crawler.UnknownSentinel,
		Time:  crawler.UnknownSentinel,
		Likes: rec.Likes.String(),
	}
	if rec.PostedAt != nil {
		ts := rec.PostedAt.UTC()
		first.Date = ts.Format("2006-01-02")
		first.Time = ts.Format("15:04:05")
	}
	if rec.Caption != nil {
		first.Caption = *rec.Caption
	}
	if len(rec.Comments) == 0 {
		return []OutputRow{first}
	}
	rows := make([]OutputRow, 0, len(rec.Comments))
	first.Comment = rec.Comments[0]
	rows = append(rows, first)
	for _, c := range rec.Comments[1:] {
		rows = append(rows, OutputRow{Comment: c})
	}
	return rows
}
