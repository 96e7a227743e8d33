// Package analytics aggregates crawl output into profile-level statistics.
package analytics

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/profile-crawler/internal/report"
	"github.com/JakeFAU/profile-crawler/internal/sentiment"
)

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// TagCount is a hashtag and how often it occurs.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// PostSummary aggregates the rows of one post.
type PostSummary struct {
	Post      int                     `json:"post"`
	URL       string                  `json:"url"`
	Date      string                  `json:"date"`
	Time      string                  `json:"time"`
	Likes     string                  `json:"likes"`
	Caption   string                  `json:"caption,omitempty"`
	Comments  int                     `json:"comments"`
	Sentiment map[sentiment.Label]int `json:"sentiment,omitempty"`
}

// Summary is the profile-level view of a crawl.
type Summary struct {
	TotalPosts    int                     `json:"total_posts"`
	TotalLikes    int64                   `json:"total_likes"`
	TotalComments int                     `json:"total_comments"`
	Hashtags      []TagCount              `json:"hashtags"`
	Sentiment     map[sentiment.Label]int `json:"sentiment,omitempty"`
	Posts         []PostSummary           `json:"posts"`
}

// Options tune Summarize.
type Options struct {
	// Scorer labels each comment; nil skips sentiment.
	Scorer sentiment.Scorer
	// TopTags bounds the hashtag list; 0 keeps every tag.
	TopTags int
}

// Summarize groups sparse rows back into posts and aggregates them. Posts
// are counted by distinct URL. Likes that are Hidden or Unknown contribute
// nothing to the total. Comments are counted when non-empty. A scorer error
// counts the comment as unknown rather than failing the summary, unless the
// context is done.
func Summarize(ctx context.Context, rows []report.OutputRow, opts Options) (Summary, error) {
	sum := Summary{}
	tags := map[string]int{}
	urls := map[string]struct{}{}
	if opts.Scorer != nil {
		sum.Sentiment = map[sentiment.Label]int{}
	}

	var current *PostSummary
	for _, row := range rows {
		if !row.IsContinuation() {
			sum.Posts = append(sum.Posts, PostSummary{
				Post:    row.Post,
				URL:     row.URL,
				Date:    row.Date,
				Time:    row.Time,
				Likes:   row.Likes,
				Caption: row.Caption,
			})
			current = &sum.Posts[len(sum.Posts)-1]
			if _, seen := urls[row.URL]; !seen && row.URL != "" {
				urls[row.URL] = struct{}{}
				if n, ok := parseLikes(row.Likes); ok {
					sum.TotalLikes += n
				}
			}
			countTags(tags, row.Caption)
		}
		comment := strings.TrimSpace(row.Comment)
		if comment == "" {
			continue
		}
		sum.TotalComments++
		countTags(tags, comment)
		if current != nil {
			current.Comments++
		}
		if opts.Scorer == nil {
			continue
		}
		label := sentiment.Unknown
		res, err := opts.Scorer.Score(ctx, comment)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Summary{}, ctxErr
			}
		} else {
			label = res.Label
		}
		sum.Sentiment[label]++
		if current != nil {
			if current.Sentiment == nil {
				current.Sentiment = map[sentiment.Label]int{}
			}
			current.Sentiment[label]++
		}
	}
	sum.TotalPosts = len(urls)
	sum.Hashtags = rankTags(tags, opts.TopTags)
	return sum, nil
}

func parseLikes(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func countTags(tags map[string]int, text string) {
	for _, tag := range hashtagPattern.FindAllString(text, -1) {
		tags[strings.ToLower(tag)]++
	}
}

func rankTags(tags map[string]int, top int) []TagCount {
	out := make([]TagCount, 0, len(tags))
	for tag, n := range tags {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}
