package storage

import "sync"

// InFlightSet tracks proposal identifiers with a reconciliation currently
// in progress, so concurrent triggers for the same proposal are skipped
// instead of queued.
type InFlightSet struct {
	mu  sync.Mutex
	set map[uint64]struct{}
}

// NewInFlightSet creates an empty in-flight set.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{set: make(map[uint64]struct{})}
}

// TryAcquire marks the proposal as in flight. It returns false if the
// proposal was already being worked on.
func (s *InFlightSet) TryAcquire(proposalID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[proposalID]; ok {
		return false
	}
	s.set[proposalID] = struct{}{}
	return true
}

// Release removes the proposal from the in-flight set.
func (s *InFlightSet) Release(proposalID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, proposalID)
}

// Contains reports whether the proposal is currently in flight.
func (s *InFlightSet) Contains(proposalID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[proposalID]
	return ok
}

// Clear removes every entry. Used when an operation aborts and the set may
// hold stale markers.
func (s *InFlightSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.set)
}

// Len returns the number of proposals currently in flight.
func (s *InFlightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
