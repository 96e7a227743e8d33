package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// RunRow is the lifecycle of one run.
type RunRow struct {
	ID         string
	Profiles   []string
	Window     crawler.Window
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	ErrorText  string
}

// PostStore keeps runs and post records grouped by run.
type PostStore struct {
	mu      sync.RWMutex
	runs    []string
	posts   map[string][]crawler.PostRecord
	runRows map[string]RunRow
}

// NewPostStore constructs a PostStore.
func NewPostStore() *PostStore {
	return &PostStore{
		posts:   make(map[string][]crawler.PostRecord),
		runRows: make(map[string]RunRow),
	}
}

// StartRun records a run in running state.
func (s *PostStore) StartRun(_ context.Context, runID string, startedAt time.Time, profiles []string, window crawler.Window) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runRows[runID] = RunRow{
		ID:        runID,
		Profiles:  append([]string(nil), profiles...),
		Window:    window,
		Status:    "running",
		StartedAt: startedAt,
	}
	return nil
}

// CompleteRun records the final status of a started run.
func (s *PostStore) CompleteRun(_ context.Context, runID string, finishedAt time.Time, status string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.runRows[runID]
	if !ok {
		return errors.New("run not found")
	}
	row.Status = status
	row.FinishedAt = finishedAt
	row.ErrorText = errText
	s.runRows[runID] = row
	return nil
}

// Run returns the lifecycle row of runID.
func (s *PostStore) Run(runID string) (RunRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.runRows[runID]
	return row, ok
}

// Append implements crawler.RecordSink.
func (s *PostStore) Append(_ context.Context, rec crawler.PostRecord) error {
	if rec.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.posts[rec.RunID]; !seen {
		s.runs = append(s.runs, rec.RunID)
	}
	s.posts[rec.RunID] = append(s.posts[rec.RunID], rec.Clone())
	return nil
}

// Posts returns copies of the records of one run in append order.
func (s *PostStore) Posts(runID string) []crawler.PostRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.posts[runID]
	out := make([]crawler.PostRecord, len(stored))
	for i, rec := range stored {
		out[i] = rec.Clone()
	}
	return out
}

// Runs lists run IDs in first-seen order.
func (s *PostStore) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.runs...)
}

// Close is a no-op.
func (s *PostStore) Close() {}
