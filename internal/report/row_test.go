package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

func record(index int, comments ...string) crawler.PostRecord {
	ts := time.Date(2024, 1, 15, 10, 20, 30, 0, time.UTC)
	caption := "caption " + string(rune('A'+index-1))
	return crawler.PostRecord{
		Index:    index,
		URL:      "https://www.instagram.com/p/" + string(rune('a'+index-1)) + "/",
		PostedAt: &ts,
		Likes:    crawler.KnownLikes(100 * index),
		Caption:  &caption,
		Comments: comments,
		InWindow: true,
	}
}

func TestExpandOneRowPerComment(t *testing.T) {
	t.Parallel()
	rows := Expand(record(1, "c1", "c2", "c3"), EmptyMetadata)
	require.Len(t, rows, 3)

	assert.Equal(t, OutputRow{
		Post:    1,
		URL:     "https://www.instagram.com/p/a/",
		Date:    "2024-01-15",
		Time:    "10:20:30",
		Likes:   "100",
		Caption: "caption A",
		Comment: "c1",
	}, rows[0])
	assert.Equal(t, OutputRow{Comment: "c2"}, rows[1])
	assert.Equal(t, OutputRow{Comment: "c3"}, rows[2])
	assert.False(t, rows[0].IsContinuation())
	assert.True(t, rows[2].IsContinuation())
}

func TestExpandEmptyCommentPolicies(t *testing.T) {
	t.Parallel()
	rec := record(2)
	rec.PostedAt = nil
	rec.Caption = nil
	rec.Likes = crawler.HiddenLikes()

	rows := Expand(rec, EmptyMetadata)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"2", rec.URL, "Unknown", "Unknown", "Hidden", "", ""}, rows[0].Record())

	assert.Empty(t, Expand(rec, EmptySkip))
}

func TestParseEmptyPolicy(t *testing.T) {
	t.Parallel()
	p, err := ParseEmptyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, EmptyMetadata, p)
	p, err = ParseEmptyPolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, EmptySkip, p)
	_, err = ParseEmptyPolicy("drop")
	require.Error(t, err)
}

type recordingWriter struct {
	batches [][]OutputRow
	err     error
}

func (w *recordingWriter) WriteRows(rows []OutputRow) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, rows)
	return nil
}

func TestAssemblerStreamsAndFinalizes(t *testing.T) {
	t.Parallel()
	w := &recordingWriter{}
	a := NewAssembler(EmptySkip, w)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, record(1, "x", "y")))
	require.NoError(t, a.Append(ctx, record(2)))
	require.NoError(t, a.Append(ctx, record(3, "z")))
	assert.Len(t, w.batches, 2)
	assert.Equal(t, 3, a.Records())

	rows := a.Finalize()
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].Post)
	assert.Equal(t, 3, rows[2].Post)

	rows[0].Comment = "mutated"
	assert.Equal(t, "x", a.Finalize()[0].Comment)
	require.ErrorIs(t, a.Append(ctx, record(4)), ErrFinalized)
}

func TestAssemblerSurfacesWriteErrors(t *testing.T) {
	t.Parallel()
	a := NewAssembler(EmptyMetadata, &recordingWriter{err: errors.New("disk full")})
	err := a.Append(context.Background(), record(1, "x"))
	require.Error(t, err)
	assert.Empty(t, a.Finalize())
}
