// Package uuid provides run and request ID helpers.
package uuid

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings for runs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewRequestID returns a random UUIDv4 string for HTTP request correlation.
func NewRequestID() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}

// Sequence hands out the given IDs in order, then fails. Tests use it to
// pin run IDs.
type Sequence struct {
	mu  sync.Mutex
	ids []string
}

// NewSequence returns a Sequence over ids.
func NewSequence(ids ...string) *Sequence {
	return &Sequence{ids: append([]string(nil), ids...)}
}

// NewID returns the next ID.
func (s *Sequence) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return "", fmt.Errorf("id sequence exhausted")
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id, nil
}
