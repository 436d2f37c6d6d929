// Package recognition implements identity matching over enrolled face
// embeddings: a concurrently readable embedding store with atomic snapshot
// replacement, and an exact nearest-neighbor matcher on top of it.
package recognition

import (
	"sync"
	"sync/atomic"

	"github.com/jsvoboda/faceguard/internal/constants"
)

// Entry is one enrolled identity and its embedding.
type Entry struct {
	IdentityID string
	Name       string
	Embedding  []float32
}

// snapshot is an immutable view of the enrolled identities. Readers hold a
// snapshot pointer for the duration of a match; writers build a fresh
// snapshot off to the side and publish it atomically, so a reader observes
// either the old or the new store, never a partially rebuilt one.
type snapshot struct {
	entries []Entry
}

// Store holds the enrolled identity embeddings.
type Store struct {
	current atomic.Pointer[snapshot]

	// mu serializes writers only; readers never take it.
	mu sync.Mutex
}

// NewStore creates an empty embedding store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&snapshot{})
	return s
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	return len(s.current.Load().entries)
}

// Entries returns the current store contents. The returned slice is the
// live snapshot and must not be modified.
func (s *Store) Entries() []Entry {
	return s.current.Load().entries
}

// Enroll adds or replaces a single identity. The embedding must be
// 128-dimensional. The store is rebuilt and swapped in one step.
func (s *Store) Enroll(id, name string, embedding []float32) error {
	if len(embedding) != constants.EmbeddingDim {
		return &ErrInvalidEmbedding{Got: len(embedding)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load().entries
	next := make([]Entry, 0, len(old)+1)
	for _, e := range old {
		if e.IdentityID != id {
			next = append(next, e)
		}
	}
	next = append(next, Entry{IdentityID: id, Name: name, Embedding: embedding})
	s.current.Store(&snapshot{entries: next})
	return nil
}

// Remove deletes an identity from the store. Removing an unknown identity
// is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load().entries
	next := make([]Entry, 0, len(old))
	for _, e := range old {
		if e.IdentityID != id {
			next = append(next, e)
		}
	}
	s.current.Store(&snapshot{entries: next})
}

// BulkReload replaces the entire store contents with the given entries,
// typically re-read from persistence. Entries with a wrong embedding
// dimension are rejected as a whole; the previous snapshot stays published.
func (s *Store) BulkReload(entries []Entry) error {
	for _, e := range entries {
		if len(e.Embedding) != constants.EmbeddingDim {
			return &ErrInvalidEmbedding{Got: len(e.Embedding)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Entry, len(entries))
	copy(next, entries)
	s.current.Store(&snapshot{entries: next})
	return nil
}
