// Package cache is the TTL and size bounded response cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"asistan/internal/store"
	"asistan/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultTTL        = time.Hour
	defaultFlushEvery = 10
	defaultBucket     = "responses"
	// entryOverhead approximates the encoded size of an entry beyond its strings.
	entryOverhead = 96
)

// Entry is one cached response.
type Entry struct {
	Key      string    `json:"key"`
	Prompt   string    `json:"prompt"`
	Response string    `json:"response"`
	Created  time.Time `json:"created"`
	Hits     int64     `json:"hits"`
}

func (e *Entry) size() int64 {
	return int64(len(e.Key) + len(e.Prompt) + len(e.Response) + entryOverhead)
}

// CacheIOError reports a persistence failure. It is logged and never fatal:
// the cache keeps working in memory.
type CacheIOError struct {
	Op  string
	Err error
}

func (e *CacheIOError) Error() string { return "cache " + e.Op + ": " + e.Err.Error() }

func (e *CacheIOError) Unwrap() error { return e.Err }

// IsCacheIO reports whether err is a CacheIOError.
func IsCacheIO(err error) bool {
	var e *CacheIOError
	return errors.As(err, &e)
}

// Config encapsulates cache tunables.
type Config struct {
	Enabled bool
	TTL     time.Duration
	// MaxBytes bounds the summed entry size; 0 means unbounded.
	MaxBytes int64
	// FlushEvery persists after every Nth put.
	FlushEvery int
	Store      store.Store
	Bucket     string
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Cache maps prompts (plus an optional context discriminator) to responses.
type Cache struct {
	mu      sync.Mutex
	flushMu sync.Mutex

	enabled    atomic.Bool
	ttl        time.Duration
	maxBytes   int64
	flushEvery int
	store      store.Store
	bucket     string
	log        zerolog.Logger
	now        func() time.Time

	entries map[string]*Entry
	size    int64
	writes  int
	hits    int64
	misses  int64
}

// New constructs a cache. Call Load to restore persisted entries.
func New(cfg Config) *Cache {
	c := &Cache{
		ttl:        cfg.TTL,
		maxBytes:   cfg.MaxBytes,
		flushEvery: cfg.FlushEvery,
		store:      cfg.Store,
		bucket:     cfg.Bucket,
		log:        cfg.Logger.With().Str("component", "cache").Logger(),
		now:        cfg.Now,
		entries:    make(map[string]*Entry),
	}
	c.enabled.Store(cfg.Enabled)
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.flushEvery <= 0 {
		c.flushEvery = defaultFlushEvery
	}
	if c.bucket == "" {
		c.bucket = defaultBucket
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Key is the hex SHA-256 of prompt, with "|discriminator" appended when the
// discriminator is non-empty.
func Key(prompt, discriminator string) string {
	content := prompt
	if discriminator != "" {
		content += "|" + discriminator
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) fresh(e *Entry, now time.Time) bool { return now.Sub(e.Created) < c.ttl }

// SetEnabled turns lookups and stores on or off. Entries are kept.
func (c *Cache) SetEnabled(on bool) {
	c.enabled.Store(on)
	c.log.Info().Bool("enabled", on).Msg("cache toggled")
}

// Get returns the cached response if present and younger than the TTL. A
// stale entry is purged.
func (c *Cache) Get(prompt, discriminator string) (string, bool) {
	if !c.enabled.Load() {
		return "", false
	}
	key := Key(prompt, discriminator)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		missesTotal.Inc()
		return "", false
	}
	if !c.fresh(e, c.now()) {
		c.removeLocked(key)
		evictionsTotal.WithLabelValues("expired").Inc()
		c.misses++
		missesTotal.Inc()
		c.log.Debug().Str("op", "get").Str("key", key).Msg("entry expired")
		return "", false
	}
	e.Hits++
	c.hits++
	hitsTotal.Inc()
	return e.Response, true
}

// Put stores response with a fresh timestamp and zero hits, then enforces the
// size bound. Every FlushEvery-th put persists the cache.
func (c *Cache) Put(prompt, response, discriminator string) {
	if !c.enabled.Load() {
		return
	}
	key := Key(prompt, discriminator)
	c.mu.Lock()
	c.removeLocked(key)
	e := &Entry{Key: key, Prompt: prompt, Response: response, Created: c.now()}
	c.entries[key] = e
	c.size += e.size()
	evicted := c.enforceBoundLocked()
	c.writes++
	flush := c.store != nil && c.writes%c.flushEvery == 0
	c.mu.Unlock()

	if evicted > 0 {
		c.log.Debug().Str("op", "put").Int("evicted", evicted).Msg("size bound enforced")
	}
	if flush {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Flush(ctx); err != nil {
			c.log.Warn().Err(err).Str("op", "flush").Msg("periodic cache flush failed; continuing in memory")
		}
	}
}

func (c *Cache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		c.size -= e.size()
		delete(c.entries, key)
	}
	entriesGauge.Set(float64(len(c.entries)))
}

// enforceBoundLocked evicts oldest-created entries until size fits.
func (c *Cache) enforceBoundLocked() int {
	defer entriesGauge.Set(float64(len(c.entries)))
	if c.maxBytes <= 0 || c.size <= c.maxBytes {
		return 0
	}
	byAge := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		byAge = append(byAge, e)
	}
	sort.Slice(byAge, func(i, j int) bool {
		if byAge[i].Created.Equal(byAge[j].Created) {
			return byAge[i].Key < byAge[j].Key
		}
		return byAge[i].Created.Before(byAge[j].Created)
	})
	n := 0
	for _, e := range byAge {
		if c.size <= c.maxBytes {
			break
		}
		c.removeLocked(e.Key)
		evictionsTotal.WithLabelValues("size").Inc()
		n++
	}
	return n
}

// EvictExpired removes every stale entry and returns how many were removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !c.fresh(e, now) {
			c.removeLocked(k)
			n++
		}
	}
	if n > 0 {
		evictionsTotal.WithLabelValues("expired").Add(float64(n))
		c.log.Info().Str("op", "evict_expired").Int("removed", n).Msg("expired entries removed")
	}
	return n
}

// Clear drops every entry in memory and in the backing store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.size = 0
	entriesGauge.Set(0)
	c.mu.Unlock()
	c.log.Info().Str("op", "clear").Msg("cache cleared")
	return c.Flush(ctx)
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SizeBytes returns the summed entry size.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats summarizes the cache.
func (c *Cache) Stats() types.CacheStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hits int64
	for _, e := range c.entries {
		hits += e.Hits
	}
	size := c.size
	if size < 0 {
		size = 0
	}
	return types.CacheStatus{
		Enabled:   c.enabled.Load(),
		Entries:   len(c.entries),
		Hits:      hits,
		Misses:    c.misses,
		SizeBytes: size,
		SizeHuman: humanize.Bytes(uint64(size)),
	}
}

// Flush writes a snapshot of every entry to the backing store.
func (c *Cache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	items := make(map[string][]byte, len(c.entries))
	var encErr error
	for k, e := range c.entries {
		b, err := json.Marshal(e)
		if err != nil {
			encErr = err
			continue
		}
		items[k] = b
	}
	c.mu.Unlock()
	if encErr != nil {
		c.log.Warn().Err(encErr).Str("op", "flush").Msg("skipping unencodable entry")
	}
	if err := c.store.ReplaceAll(ctx, c.bucket, items); err != nil {
		return &CacheIOError{Op: "flush", Err: err}
	}
	c.log.Debug().Str("op", "flush").Int("entries", len(items)).Msg("cache persisted")
	return nil
}

// Load restores persisted entries, dropping stale and malformed ones and
// enforcing the size bound.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	items, err := c.store.All(ctx, c.bucket)
	if err != nil {
		return &CacheIOError{Op: "load", Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	loaded, skipped := 0, 0
	for k, b := range items {
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil || e.Key != k {
			skipped++
			continue
		}
		if !c.fresh(&e, now) {
			skipped++
			continue
		}
		c.removeLocked(k)
		c.entries[k] = &e
		c.size += e.size()
		loaded++
	}
	c.enforceBoundLocked()
	c.log.Info().Str("op", "load").Int("entries", loaded).Int("skipped", skipped).Msg("cache loaded")
	return nil
}

// Close persists the cache.
func (c *Cache) Close(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
