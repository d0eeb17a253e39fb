package validate

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// retryContext tracks validation attempts for one session+field pair.
type retryContext struct {
	count       int
	lastUpdated time.Time
}

// ContextStore is an expiring counter store keyed by sessionID:field. A
// context older than the TTL behaves exactly like a fresh one, which is what
// gives a returning user a clean slate instead of inherited failure counts.
//
// The expirable LRU evicts stale entries on its own; lastUpdated is checked
// against the injectable clock as well so expiry is testable without waiting
// out the real TTL.
type ContextStore struct {
	ttl     time.Duration
	entries *expirable.LRU[string, *retryContext]
	now     func() time.Time
}

func NewContextStore(ttl time.Duration) *ContextStore {
	return &ContextStore{
		ttl:     ttl,
		entries: expirable.NewLRU[string, *retryContext](maxTrackedFields, nil, ttl),
		now:     time.Now,
	}
}

// maxTrackedFields bounds the store; at 8 fields per session this covers
// thousands of concurrent sessions before LRU eviction kicks in.
const maxTrackedFields = 65536

func contextKey(sessionID, field string) string {
	return fmt.Sprintf("%s:%s", sessionID, field)
}

// Count returns the current retry count, treating expired contexts as fresh.
func (s *ContextStore) Count(sessionID, field string) int {
	rc, ok := s.entries.Get(contextKey(sessionID, field))
	if !ok {
		return 0
	}
	if s.now().Sub(rc.lastUpdated) > s.ttl {
		s.entries.Remove(contextKey(sessionID, field))
		return 0
	}
	return rc.count
}

// Increment records a failed attempt and returns the new count.
func (s *ContextStore) Increment(sessionID, field string) int {
	key := contextKey(sessionID, field)
	rc, ok := s.entries.Get(key)
	if !ok || s.now().Sub(rc.lastUpdated) > s.ttl {
		rc = &retryContext{}
	}
	rc.count++
	rc.lastUpdated = s.now()
	s.entries.Add(key, rc)
	return rc.count
}

// Reset clears the context after a successful validation or an explicit
// modality switch (escalation chip tapped).
func (s *ContextStore) Reset(sessionID, field string) {
	s.entries.Remove(contextKey(sessionID, field))
}
