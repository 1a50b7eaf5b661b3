package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"asistan/internal/common/fsutil"
)

var bucketPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// File stores each bucket as one JSON object in <dir>/<bucket>.json, written
// atomically. Values must be valid JSON so the files stay readable.
type File struct {
	dir string
	mu  sync.Mutex
}

// OpenFile creates dir if needed.
func OpenFile(dir string) (*File, error) {
	d, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	return &File{dir: d}, nil
}

func (f *File) path(bucket string) (string, error) {
	if !bucketPattern.MatchString(bucket) {
		return "", fmt.Errorf("store: invalid bucket name %q", bucket)
	}
	return filepath.Join(f.dir, bucket+".json"), nil
}

func (f *File) read(bucket string) (map[string]json.RawMessage, error) {
	p, err := f.path(bucket)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]json.RawMessage{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return m, nil
}

func (f *File) write(bucket string, m map[string]json.RawMessage) error {
	p, err := f.path(bucket)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(p, b, 0o644)
}

func (f *File) Get(_ context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read(bucket)
	if err != nil {
		return nil, err
	}
	v, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func (f *File) Put(_ context.Context, bucket, key string, value []byte) error {
	if err := validName("key", key); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("store: value for %s/%s is not JSON", bucket, key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read(bucket)
	if err != nil {
		return err
	}
	m[key] = append(json.RawMessage(nil), value...)
	return f.write(bucket, m)
}

func (f *File) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read(bucket)
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return f.write(bucket, m)
}

func (f *File) All(_ context.Context, bucket string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read(bucket)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out, nil
}

func (f *File) ReplaceAll(_ context.Context, bucket string, items map[string][]byte) error {
	m := make(map[string]json.RawMessage, len(items))
	for k, v := range items {
		if !json.Valid(v) {
			return fmt.Errorf("store: value for %s/%s is not JSON", bucket, k)
		}
		m[k] = v
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(bucket, m)
}

func (f *File) Close() error { return nil }
