package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process timestamp windows.
// Suitable for client-side limiting where the process owns the resource
// being protected, as with pooled SMTP connections.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type window struct {
	timestamps []time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the interval for pruning expired windows.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStore creates a new in-memory store with background pruning of
// empty windows.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*window),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// RecordIfAllowed atomically prunes expired timestamps, checks the limit,
// and records n fresh timestamps when within limit.
func (s *MemoryStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, windowSize time.Duration, limit, n int) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists {
		w = &window{}
		s.windows[key] = w
	}

	w.prune(now.Add(-windowSize))

	if len(w.timestamps)+n > limit {
		return false, int64(len(w.timestamps)), nil
	}

	for range n {
		w.timestamps = append(w.timestamps, now)
	}
	return true, int64(len(w.timestamps)), nil
}

// CountInWindow returns the number of timestamps within the sliding window.
func (s *MemoryStore) CountInWindow(ctx context.Context, key string, windowSize time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists {
		return 0, nil
	}

	w.prune(time.Now().Add(-windowSize))
	return int64(len(w.timestamps)), nil
}

// RemoveLast removes up to n of the most recently recorded timestamps.
// Timestamps are appended in arrival order, so the newest sit at the tail.
func (s *MemoryStore) RemoveLast(ctx context.Context, key string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists || n <= 0 {
		return nil
	}

	if n > len(w.timestamps) {
		n = len(w.timestamps)
	}
	w.timestamps = w.timestamps[:len(w.timestamps)-n]
	return nil
}

// Delete removes the given key from the store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (w *window) prune(cutoff time.Time) {
	valid := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	w.timestamps = valid
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops windows emptied by pruning to bound memory use. Pruning
// itself happens on the read/write paths, where the window size is known.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
		}
	}
}
