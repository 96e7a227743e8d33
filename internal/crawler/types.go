package crawler

import (
	"strconv"
	"time"
)

// LikeState distinguishes a parsed like count from the two ways it can be missing.
type LikeState int

// Like count states.
const (
	// LikesUnknown means a like element was present but its text could not be parsed.
	LikesUnknown LikeState = iota
	// LikesKnown means Value holds the parsed count.
	LikesKnown
	// LikesHidden means the post exposes no like element at all.
	LikesHidden
)

// Sentinel strings rendered in place of missing values.
const (
	HiddenSentinel  = "Hidden"
	UnknownSentinel = "Unknown"
)

// LikeCount is a like tally that may be hidden by the author.
type LikeCount struct {
	State LikeState
	Value int
}

// KnownLikes returns a LikeCount carrying n.
func KnownLikes(n int) LikeCount {
	return LikeCount{State: LikesKnown, Value: n}
}

// HiddenLikes returns the LikeCount for posts that do not display likes.
func HiddenLikes() LikeCount {
	return LikeCount{State: LikesHidden}
}

// UnknownLikes returns the LikeCount for unparseable like text.
func UnknownLikes() LikeCount {
	return LikeCount{State: LikesUnknown}
}

// IsKnown reports whether the count was parsed.
func (l LikeCount) IsKnown() bool {
	return l.State == LikesKnown
}

func (l LikeCount) String() string {
	switch l.State {
	case LikesKnown:
		return strconv.Itoa(l.Value)
	case LikesHidden:
		return HiddenSentinel
	default:
		return UnknownSentinel
	}
}

// PostRecord is everything extracted from one visited post.
type PostRecord struct {
	RunID    string     `json:"run_id,omitempty"`
	Profile  string     `json:"profile,omitempty"`
	Index    int        `json:"index"`
	URL      string     `json:"url"`
	PostedAt *time.Time `json:"posted_at,omitempty"`
	Likes    LikeCount  `json:"-"`
	Caption  *string    `json:"caption,omitempty"`
	Comments []string   `json:"comments"`
	InWindow bool       `json:"in_window"`
}

// Clone returns a deep copy so sinks can retain the record without sharing slices.
func (r PostRecord) Clone() PostRecord {
	out := r
	if r.PostedAt != nil {
		t := *r.PostedAt
		out.PostedAt = &t
	}
	if r.Caption != nil {
		c := *r.Caption
		out.Caption = &c
	}
	out.Comments = append([]string(nil), r.Comments...)
	return out
}

// State is the controller's position in the walk.
type State string

// Controller states.
const (
	StateNotStarted State = "not_started"
	StateAtPost     State = "at_post"
	StateTerminated State = "terminated"
)

// CrawlState is the controller's bookkeeping for the post currently open.
type CrawlState struct {
	State   State
	Visited int
	// InWindow holds for the current post when its date is known and inside the window.
	InWindow bool
	// BelowStart holds when the current post's date is known and earlier than the window start.
	// Only acted upon once Visited exceeds the pin grace.
	BelowStart bool
}

// StopReason records why a walk ended.
type StopReason string

// Stop reasons.
const (
	StopNone         StopReason = ""
	StopDateBoundary StopReason = "date_boundary"
	StopNoNext       StopReason = "no_next"
	StopStalled      StopReason = "stalled"
	StopRevisit      StopReason = "revisit"
	StopMaxPosts     StopReason = "max_posts"
	StopCanceled     StopReason = "canceled"
	StopNavigation   StopReason = "navigation"
	StopSinkError    StopReason = "sink_error"
)

// Result summarizes a finished walk.
type Result struct {
	Visited  int
	Recorded int
	Comments int
	Reason   StopReason
	Duration time.Duration
}
