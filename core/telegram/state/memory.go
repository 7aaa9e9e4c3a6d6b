package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/taskly/core/logger"
)

// Options configures a Store.
type Options struct {
	// TTL is how long an untouched entry survives. Zero disables eviction.
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

type entry[T any] struct {
	mu      sync.Mutex
	value   T
	touched time.Time
	busy    int
}

// Store maps chat IDs to scratch values of type T.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[int64]*entry[T]
	init    func() T
	ttl     time.Duration
	now     func() time.Time
}

// NewStore constructs a store; init produces the value for a chat seen for the first time.
func NewStore[T any](opts Options, init func() T) *Store[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if init == nil {
		init = func() T {
			var zero T
			return zero
		}
	}
	return &Store[T]{
		entries: make(map[int64]*entry[T]),
		init:    init,
		ttl:     opts.TTL,
		now:     opts.Now,
	}
}

// With runs fn with exclusive access to the chat's value, creating it lazily.
func (s *Store[T]) With(chatID int64, fn func(*T) error) error {
	s.mu.Lock()
	e, ok := s.entries[chatID]
	if !ok {
		e = &entry[T]{value: s.init()}
		s.entries[chatID] = e
	}
	e.busy++
	s.mu.Unlock()

	e.mu.Lock()
	err := fn(&e.value)
	e.mu.Unlock()

	s.mu.Lock()
	e.busy--
	e.touched = s.now()
	s.mu.Unlock()
	return err
}

// Get returns a copy of the chat's value without creating an entry.
func (s *Store[T]) Get(chatID int64) (T, bool) {
	s.mu.Lock()
	e, ok := s.entries[chatID]
	s.mu.Unlock()
	if !ok {
		var zero T
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, true
}

// Len reports how many chats are tracked.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Evict drops entries idle longer than the TTL and returns how many were removed.
// Entries currently held by With are never evicted.
func (s *Store[T]) Evict() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.busy == 0 && e.touched.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// RunEviction calls Evict every interval until ctx is done.
func (s *Store[T]) RunEviction(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				logger.Debug(ctx, "conversation", "state.evicted",
					slog.Int("removed", n),
					slog.Int("remaining", s.Len()),
				)
			}
		}
	}
}
