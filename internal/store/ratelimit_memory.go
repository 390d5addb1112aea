package store

import (
	"context"
	"sync"
	"time"
)

// RateLimitMemoryStore is an in-process ratelimit.Store. Clients that have
// been idle for a whole window are dropped, at most once per window.
type RateLimitMemoryStore struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	now       func() time.Time
	lastSweep time.Time
}

// MemoryOption configures a RateLimitMemoryStore.
type MemoryOption func(*RateLimitMemoryStore)

// WithMemoryClock sets the time source used to stamp and expire requests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *RateLimitMemoryStore) {
		s.now = now
	}
}

// NewRateLimitMemoryStore creates an empty in-memory rate limit store.
func NewRateLimitMemoryStore(opts ...MemoryOption) *RateLimitMemoryStore {
	s := &RateLimitMemoryStore{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.lastSweep = s.now()

	return s
}

func (s *RateLimitMemoryStore) Record(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	if now.Sub(s.lastSweep) >= window {
		s.sweep(cutoff)
		s.lastSweep = now
	}

	// Timestamps are appended in order, so expired ones form a prefix.
	timestamps := s.requests[key]

	first := 0
	for first < len(timestamps) && !timestamps[first].After(cutoff) {
		first++
	}

	valid := append(timestamps[first:], now)
	s.requests[key] = valid

	return int64(len(valid)), nil
}

// sweep drops every key whose newest request is at or before cutoff.
func (s *RateLimitMemoryStore) sweep(cutoff time.Time) {
	for key, timestamps := range s.requests {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
			delete(s.requests, key)
		}
	}
}

// Keys returns how many clients are currently tracked.
func (s *RateLimitMemoryStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}
