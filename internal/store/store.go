// Package store is the durable key-value surface behind the response cache
// and session records. Values are opaque bytes grouped in buckets.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("store: not found")

// Store persists values by bucket and key.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
	// All returns every value in bucket. An empty bucket yields an empty map.
	All(ctx context.Context, bucket string) (map[string][]byte, error)
	// ReplaceAll makes bucket hold exactly items.
	ReplaceAll(ctx context.Context, bucket string, items map[string][]byte) error
	Close() error
}

// Keys returns the sorted keys of a bucket.
func Keys(ctx context.Context, s Store, bucket string) ([]string, error) {
	all, err := s.All(ctx, bucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func validName(kind, s string) error {
	if s == "" {
		return fmt.Errorf("store: empty %s", kind)
	}
	return nil
}

// Memory keeps everything in process memory.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemory() *Memory { return &Memory{buckets: map[string]map[string][]byte{}} }

func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, bucket, key string, value []byte) error {
	if err := validName("bucket", bucket); err != nil {
		return err
	}
	if err := validName("key", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = map[string][]byte{}
		m.buckets[bucket] = b
	}
	b[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

func (m *Memory) All(_ context.Context, bucket string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.buckets[bucket]))
	for k, v := range m.buckets[bucket] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) ReplaceAll(_ context.Context, bucket string, items map[string][]byte) error {
	if err := validName("bucket", bucket); err != nil {
		return err
	}
	b := make(map[string][]byte, len(items))
	for k, v := range items {
		b[k] = append([]byte(nil), v...)
	}
	m.mu.Lock()
	m.buckets[bucket] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
