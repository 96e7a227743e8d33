package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	likeNumber = regexp.MustCompile(`(\d[\d,.\s\x{00a0}\x{202f}]*)\s*((?i:lakhs?|lacs?|crores?|cr|k|m)\b)?`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// ParseTimestamp reads an ISO 8601 datetime attribute and returns it in UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseLikeCount reads texts such as "1,204 likes", "12.5K", "3 M" or
// "1.2 lakh". Group separators may be commas, dots, or spaces.
func ParseLikeCount(text string) (int, bool) {
	m := likeNumber.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := strings.TrimRight(m[1], " ,.\u00a0\u202f")
	if suffix := strings.ToLower(m[2]); suffix != "" {
		f, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", "."), 64)
		if err != nil {
			return 0, false
		}
		var mult float64
		switch {
		case suffix == "k":
			mult = 1e3
		case suffix == "m":
			mult = 1e6
		case strings.HasPrefix(suffix, "la"):
			mult = 1e5
		default:
			mult = 1e7
		}
		return int(f*mult + 0.5), true
	}
	digits = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, digits)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CleanText trims and collapses whitespace.
func CleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
