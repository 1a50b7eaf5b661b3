package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"asistan/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingStore wraps a memory store, counting writes and optionally failing.
type countingStore struct {
	*store.Memory
	mu       sync.Mutex
	replaces int
	fail     bool
}

func newCountingStore() *countingStore { return &countingStore{Memory: store.NewMemory()} }

func (s *countingStore) ReplaceAll(ctx context.Context, bucket string, items map[string][]byte) error {
	s.mu.Lock()
	s.replaces++
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.Memory.ReplaceAll(ctx, bucket, items)
}

func (s *countingStore) Replaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaces
}

func newTestCache(st store.Store, maxBytes int64) (*Cache, *fakeClock) {
	clk := newFakeClock()
	return New(Config{Enabled: true, TTL: time.Hour, MaxBytes: maxBytes, Store: st, Now: clk.Now}), clk
}
