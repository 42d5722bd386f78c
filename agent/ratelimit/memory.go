// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu          sync.Mutex
	count       int64
	windowStart time.Time
	window      time.Duration
	dead        bool
}

// MemoryStore keeps counters in process memory. It is suitable for tests and
// single-instance deployments only; with several gateway processes each one
// enforces its own limits.
type MemoryStore struct {
	entries sync.Map // key -> *memoryEntry
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a MemoryStore. A positive cleanupInterval starts a
// janitor that drops counters whose window has elapsed.
func NewMemoryStore(cleanupInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cleanupInterval > 0 {
		s.wg.Add(1)
		go s.janitor(cleanupInterval)
	}
	return s
}

// Increment implements Store
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}
	for {
		v, _ := s.entries.LoadOrStore(key, &memoryEntry{})
		e := v.(*memoryEntry)

		e.mu.Lock()
		if e.dead {
			// removed by the janitor between load and lock
			e.mu.Unlock()
			continue
		}
		now := s.now()
		if e.windowStart.IsZero() || !now.Before(e.windowStart.Add(window)) {
			e.count = 0
			e.windowStart = now
		}
		e.window = window
		e.count++
		c := Counter{Count: e.count, WindowStart: e.windowStart}
		e.mu.Unlock()
		return c, nil
	}
}

// Len returns the number of live counters
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Sweep drops every counter whose window has elapsed
func (s *MemoryStore) Sweep() {
	now := s.now()
	s.entries.Range(func(k, v interface{}) bool {
		e := v.(*memoryEntry)
		e.mu.Lock()
		if !e.windowStart.IsZero() && !now.Before(e.windowStart.Add(e.window)) {
			e.dead = true
			s.entries.Delete(k)
		}
		e.mu.Unlock()
		return true
	})
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	return nil
}
