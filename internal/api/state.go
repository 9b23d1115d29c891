package api

import (
	"sync"
	"time"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

// pendingConnect identifies who initiated an OAuth flow. The callback carries
// no bearer token, so the state value is the only link back to the user.
type pendingConnect struct {
	TenantID  string
	UserID    string
	Platform  domain.Platform
	CreatedAt time.Time
}

// stateStore keeps pending OAuth states in memory with a fixed TTL. Entries
// are single-use: take removes the entry regardless of outcome.
type stateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]pendingConnect
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{
		ttl:     ttl,
		pending: make(map[string]pendingConnect),
	}
}

func (s *stateStore) put(state string, entry pendingConnect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.CreatedAt = time.Now()
	s.pending[state] = entry
	s.evictExpiredLocked()
}

func (s *stateStore) take(state string) (pendingConnect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[state]
	if !ok {
		return pendingConnect{}, false
	}
	delete(s.pending, state)
	if time.Since(entry.CreatedAt) > s.ttl {
		return pendingConnect{}, false
	}
	return entry, true
}

func (s *stateStore) evictExpiredLocked() {
	cutoff := time.Now().Add(-s.ttl)
	for state, entry := range s.pending {
		if entry.CreatedAt.Before(cutoff) {
			delete(s.pending, state)
		}
	}
}
