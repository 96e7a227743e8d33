package report

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// ErrFinalized is returned by Append after Finalize.
var ErrFinalized = errors.New("assembler finalized")

// RowWriter persists rows as they are produced.
type RowWriter interface {
	WriteRows(rows []OutputRow) error
}

// Assembler accumulates rows for one crawl and implements crawler.RecordSink.
type Assembler struct {
	mu        sync.Mutex
	policy    EmptyPolicy
	writer    RowWriter
	rows      []OutputRow
	records   int
	finalized bool
}

// NewAssembler returns an assembler. writer may be nil.
func NewAssembler(policy EmptyPolicy, writer RowWriter) *Assembler {
	if policy == "" {
		policy = EmptyMetadata
	}
	return &Assembler{policy: policy, writer: writer}
}

// Append expands rec and writes its rows through before returning.
func (a *Assembler) Append(_ context.Context, rec crawler.PostRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return ErrFinalized
	}
	rows := Expand(rec, a.policy)
	if a.writer != nil && len(rows) > 0 {
		if err := a.writer.WriteRows(rows); err != nil {
			return fmt.Errorf("write rows for post %d: %w", rec.Index, err)
		}
	}
	a.rows = append(a.rows, rows...)
	a.records++
	return nil
}

// Records counts appended records.
func (a *Assembler) Records() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records
}

// Finalize closes the assembler and returns a copy of all rows.
func (a *Assembler) Finalize() []OutputRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	return append([]OutputRow(nil), a.rows...)
}
