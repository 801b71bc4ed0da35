package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps keys in process memory. Used by tests and single-instance local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Acquire implements Store.
func (s *MemoryStore) Acquire(_ context.Context, claim Claim) (Reservation, error) {
	claim = claim.normalized()
	id := documentID(claim.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.expired(claim.Now) {
		entry = newInFlightEntry(claim)
		s.entries[id] = entry
		return Reservation{Outcome: OutcomeAcquired, Entry: entry}, nil
	}
	if entry.Fingerprint != claim.Fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if entry.State == StateCompleted {
		return Reservation{Outcome: OutcomeReplay, Entry: entry}, nil
	}
	return Reservation{Outcome: OutcomeInFlight, Entry: entry}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, claim Claim, resp Response) error {
	claim = claim.normalized()
	id := documentID(claim.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if ok && entry.Fingerprint != claim.Fingerprint {
		return ErrFingerprintMismatch
	}
	s.entries[id] = completeEntry(entry, claim, resp)
	return nil
}

// Release implements Store. Only the owner of the fingerprint may release a key.
func (s *MemoryStore) Release(_ context.Context, claim Claim) error {
	id := documentID(claim.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok && entry.Fingerprint == claim.Fingerprint {
		delete(s.entries, id)
	}
	return nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if entry.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
