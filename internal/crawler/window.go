package crawler

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Window is an inclusive calendar-date range.
type Window struct {
	Start civil.Date
	End   civil.Date
}

// NewWindow validates that start does not fall after end.
func NewWindow(start, end civil.Date) (Window, error) {
	if !start.IsValid() || !end.IsValid() {
		return Window{}, fmt.Errorf("window dates must be valid")
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	return Window{Start: start, End: end}, nil
}

// ParseWindow parses two YYYY-MM-DD dates.
func ParseWindow(start, end string) (Window, error) {
	s, err := civil.ParseDate(strings.TrimSpace(start))
	if err != nil {
		return Window{}, fmt.Errorf("parse start date: %w", err)
	}
	e, err := civil.ParseDate(strings.TrimSpace(end))
	if err != nil {
		return Window{}, fmt.Errorf("parse end date: %w", err)
	}
	return NewWindow(s, e)
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}

// Contains reports whether d lies within the window, bounds included.
func (w Window) Contains(d civil.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// BeforeStart reports whether d is earlier than the window start.
func (w Window) BeforeStart(d civil.Date) bool {
	return d.Before(w.Start)
}

func (w Window) String() string {
	return w.Start.String() + ".." + w.End.String()
}
