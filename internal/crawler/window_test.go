package crawler

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	t.Parallel()
	w, err := ParseWindow("2024-01-01", " 2024-01-31 ")
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 1}, w.Start)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 31}, w.End)
	assert.Equal(t, "2024-01-01..2024-01-31", w.String())

	tests := []struct {
		name       string
		start, end string
	}{
		{"bad start", "2024-13-01", "2024-01-31"},
		{"bad end", "2024-01-01", "31/01/2024"},
		{"reversed", "2024-02-01", "2024-01-31"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWindow(tc.start, tc.end)
			require.Error(t, err)
		})
	}
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	t.Parallel()
	w, err := ParseWindow("2024-01-01", "2024-01-31")
	require.NoError(t, err)

	assert.True(t, w.Contains(civil.Date{Year: 2024, Month: time.January, Day: 1}))
	assert.True(t, w.Contains(civil.Date{Year: 2024, Month: time.January, Day: 31}))
	assert.False(t, w.Contains(civil.Date{Year: 2024, Month: time.February, Day: 1}))
	assert.True(t, w.BeforeStart(civil.Date{Year: 2023, Month: time.December, Day: 31}))
	assert.False(t, w.BeforeStart(civil.Date{Year: 2024, Month: time.January, Day: 1}))
}

func TestDateOfUsesUTC(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2024, time.January, 1, 2, 0, 0, 0, loc)
	assert.Equal(t, civil.Date{Year: 2023, Month: time.December, Day: 31}, DateOf(ts))
}
