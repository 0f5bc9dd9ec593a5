package testutil

import (
	"sync"

	"github.com/roach88/deferring/internal/relation"
)

// Sequence hands out monotonic identities for in-memory records.
//
// The first call to Next returns 1. Reset restarts the sequence so the same
// test can run twice with identical identities.
//
// Thread-safety: all methods are safe for concurrent use.
type Sequence struct {
	mu   sync.Mutex
	last relation.ID
}

// Next increments and returns the next identity.
func (s *Sequence) Next() relation.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Current returns the last identity handed out, NoID before the first call.
func (s *Sequence) Current() relation.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset restarts the sequence.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = relation.NoID
}
