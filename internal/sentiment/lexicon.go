package sentiment

import (
	"context"
	"strings"
	"unicode"
)

var defaultPositive = []string{
	"amazing", "awesome", "beautiful", "best", "brilliant", "congrats",
	"congratulations", "cool", "cute", "excellent", "good", "fantastic", "gorgeous",
	"great", "happy", "incredible", "inspiring", "love", "loved", "lovely",
	"nice", "perfect", "pretty", "proud", "stunning", "superb", "thanks",
	"wonderful", "wow", "yay",
	"❤", "😍", "🥰", "😊", "🔥", "👏", "🙌", "💯", "😂", "🤩", "💕",
}

var defaultNegative = []string{
	"angry", "awful", "bad", "boring", "disappointed", "disappointing",
	"disgusting", "fake", "hate", "horrible", "poor", "sad", "scam", "shame",
	"terrible", "trash", "ugly", "unfollow", "worst", "wrong",
	"😡", "😠", "👎", "😢", "😭", "🤮", "💔",
}

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "dont": {}, "don't": {}, "isn't": {}, "isnt": {},
}

// Lexicon scores text by counting words from fixed positive and negative lists.
type Lexicon struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// NewLexicon returns a scorer over the built-in word lists plus any extras.
func NewLexicon(extraPositive, extraNegative []string) *Lexicon {
	l := &Lexicon{positive: make(map[string]struct{}), negative: make(map[string]struct{})}
	for _, w := range append(defaultPositive, extraPositive...) {
		l.positive[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range append(defaultNegative, extraNegative...) {
		l.negative[strings.ToLower(w)] = struct{}{}
	}
	return l
}

// Score implements Scorer. A negator flips the polarity of the next hit.
// Confidence is the share of hits agreeing with the winning label.
func (l *Lexicon) Score(_ context.Context, text string) (Result, error) {
	pos, neg := 0, 0
	negate := false
	for _, tok := range tokenize(text) {
		if _, ok := negators[tok]; ok {
			negate = true
			continue
		}
		_, isPos := l.positive[tok]
		_, isNeg := l.negative[tok]
		if !isPos && !isNeg {
			continue
		}
		if negate {
			isPos, isNeg = isNeg, isPos
			negate = false
		}
		if isPos {
			pos++
		}
		if isNeg {
			neg++
		}
	}
	total := pos + neg
	switch {
	case total == 0:
		return Result{Label: Neutral, Confidence: 0}, nil
	case pos > neg:
		return Result{Label: Positive, Confidence: float64(pos) / float64(total)}, nil
	case neg > pos:
		return Result{Label: Negative, Confidence: float64(neg) / float64(total)}, nil
	}
	return Result{Label: Neutral, Confidence: 0.5}, nil
}

// tokenize lowercases text and splits it into words and individual symbols.
func tokenize(text string) []string {
	var (
		out  []string
		word strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			word.WriteRune(r)
		case r == '\uFE0F' || r == '\u200D':
			// Emoji presentation selectors and joiners carry no meaning here.
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			flush()
		default:
			flush()
			out = append(out, string(r))
		}
	}
	flush()
	return out
}
