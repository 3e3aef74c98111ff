package dedup

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	at  time.Time
	exp time.Time
}

// MemoryStore keeps last-fired times in process memory.
// Expired entries are swept on write, using the write's timestamp as the clock.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]entry)}
}

func (s *MemoryStore) LastFired(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	return e.at, ok, nil
}

func (s *MemoryStore) SetFired(_ context.Context, key string, at time.Time, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = at.Add(ttl)
	}
	s.mu.Lock()
	for k, e := range s.m {
		if !e.exp.IsZero() && !at.Before(e.exp) {
			delete(s.m, k)
		}
	}
	s.m[key] = entry{at: at, exp: exp}
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
