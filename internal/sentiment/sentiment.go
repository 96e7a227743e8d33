// Package sentiment scores comment text.
package sentiment

import (
	"context"
	"strings"
)

// Label is a sentiment class.
type Label string

// Sentiment labels.
const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
	Unknown  Label = "unknown"
)

// Result is a label with the scorer's confidence in [0, 1].
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Scorer classifies one text.
type Scorer interface {
	Score(ctx context.Context, text string) (Result, error)
}

// ParseLabel normalises labels from external models, such as "POSITIVE",
// "neg", or "LABEL_1" (three-class models order negative, neutral, positive).
func ParseLabel(raw string) Label {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "pos"), s == "label_2":
		return Positive
	case strings.HasPrefix(s, "neg"), s == "label_0":
		return Negative
	case strings.HasPrefix(s, "neu"), s == "label_1":
		return Neutral
	}
	return Unknown
}
