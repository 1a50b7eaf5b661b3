package cache

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func TestGetPutTTL(t *testing.T) {
	c, clk := newTestCache(nil, 0)
	c.Put("hava durumu", "25 derece", "")
	if v, ok := c.Get("hava durumu", ""); !ok || v != "25 derece" {
		t.Fatalf("get=%q,%v", v, ok)
	}
	clk.Advance(time.Hour)
	if _, ok := c.Get("hava durumu", ""); ok {
		t.Fatalf("entry served at TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("stale entry not purged")
	}
	c.Put("hava durumu", "18 derece", "")
	if v, ok := c.Get("hava durumu", ""); !ok || v != "18 derece" {
		t.Fatalf("put after expiry: %q,%v", v, ok)
	}
}

func TestContextDiscriminator(t *testing.T) {
	c, _ := newTestCache(nil, 0)
	c.Put("nasılsın", "iyiyim", "")
	c.Put("nasılsın", "yorgunum", "akşam")
	if v, _ := c.Get("nasılsın", ""); v != "iyiyim" {
		t.Fatalf("plain=%q", v)
	}
	if v, _ := c.Get("nasılsın", "akşam"); v != "yorgunum" {
		t.Fatalf("with context=%q", v)
	}
	if Key("a", "") == Key("a", "b") || Key("a", "b") != Key("a", "b") || len(Key("a", "")) != 64 {
		t.Fatalf("key construction not stable")
	}
}

func TestHitsAndOverwriteReset(t *testing.T) {
	c, _ := newTestCache(nil, 0)
	c.Put("p", "r1", "")
	c.Get("p", "")
	c.Get("p", "")
	c.Get("missing", "")
	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Entries != 1 || !st.Enabled {
		t.Fatalf("stats=%+v", st)
	}
	c.Put("p", "r2", "")
	if st := c.Stats(); st.Hits != 0 {
		t.Fatalf("overwrite must reset hits, got %d", st.Hits)
	}
	if st.SizeHuman == "" || st.SizeBytes <= 0 {
		t.Fatalf("size not reported: %+v", st)
	}
}

func TestDisabledIsNoop(t *testing.T) {
	c := New(Config{Enabled: false})
	c.Put("p", "r", "")
	if _, ok := c.Get("p", ""); ok || c.Len() != 0 {
		t.Fatalf("disabled cache stored an entry")
	}
}

func TestSetEnabledKeepsEntries(t *testing.T) {
	c, _ := newTestCache(nil, 0)
	c.Put("p", "r", "")
	c.SetEnabled(false)
	if _, ok := c.Get("p", ""); ok || c.Stats().Enabled {
		t.Fatalf("lookup served while disabled")
	}
	c.SetEnabled(true)
	if v, ok := c.Get("p", ""); !ok || v != "r" {
		t.Fatalf("entry lost across toggle: %q,%v", v, ok)
	}
}

func TestSizeBoundEvictsOldestFirst(t *testing.T) {
	one := (&Entry{Key: Key("p0", ""), Prompt: "p0", Response: "r0"}).size()
	c, clk := newTestCache(nil, 3*one)
	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		c.Put(fmt.Sprintf("p%d", i), fmt.Sprintf("r%d", i), "")
		if c.SizeBytes() > 3*one {
			t.Fatalf("bound violated after put %d: %d > %d", i, c.SizeBytes(), 3*one)
		}
	}
	for i := 0; i < 2; i++ {
		if _, ok := c.Get(fmt.Sprintf("p%d", i), ""); ok {
			t.Fatalf("oldest entry p%d survived", i)
		}
	}
	for i := 2; i < 5; i++ {
		if _, ok := c.Get(fmt.Sprintf("p%d", i), ""); !ok {
			t.Fatalf("recent entry p%d evicted", i)
		}
	}
}

func TestSizeBoundRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const max = 4096
	c, clk := newTestCache(nil, max)
	for i := 0; i < 500; i++ {
		clk.Advance(time.Duration(rng.Intn(5)) * time.Second)
		prompt := fmt.Sprintf("p%d", rng.Intn(60))
		c.Put(prompt, strings.Repeat("x", rng.Intn(1500)), "")
		if c.SizeBytes() > max {
			t.Fatalf("bound violated: %d", c.SizeBytes())
		}
	}
	// an entry larger than the bound cannot stay
	c.Put("huge", strings.Repeat("y", 2*max), "")
	if _, ok := c.Get("huge", ""); ok || c.SizeBytes() > max {
		t.Fatalf("oversized entry kept")
	}
}

func TestEvictExpired(t *testing.T) {
	c, clk := newTestCache(nil, 0)
	c.Put("a", "1", "")
	clk.Advance(30 * time.Minute)
	c.Put("b", "2", "")
	clk.Advance(31 * time.Minute)
	if n := c.EvictExpired(); n != 1 {
		t.Fatalf("evicted=%d", n)
	}
	if _, ok := c.Get("b", ""); !ok {
		t.Fatalf("fresh entry removed")
	}
}

func TestPeriodicFlushEveryNthWrite(t *testing.T) {
	st := newCountingStore()
	c, _ := newTestCache(st, 0)
	for i := 0; i < 9; i++ {
		c.Put(fmt.Sprintf("p%d", i), "r", "")
	}
	if st.Replaces() != 0 {
		t.Fatalf("flushed before the 10th write")
	}
	c.Put("p9", "r", "")
	if st.Replaces() != 1 {
		t.Fatalf("expected one flush, got %d", st.Replaces())
	}
	all, _ := st.All(context.Background(), defaultBucket)
	if len(all) != 10 {
		t.Fatalf("persisted %d entries", len(all))
	}
}

func TestLoadRestoresFreshEntries(t *testing.T) {
	st := newCountingStore()
	c1, clk := newTestCache(st, 0)
	c1.Put("eski", "x", "")
	clk.Advance(50 * time.Minute)
	c1.Put("yeni", "y", "")
	if err := c1.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.Memory.Put(context.Background(), defaultBucket, "junk", []byte("{")); err != nil {
		t.Fatalf("put junk: %v", err)
	}

	clk.Advance(20 * time.Minute)
	c2 := New(Config{Enabled: true, TTL: time.Hour, Store: st, Now: clk.Now})
	if err := c2.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c2.Len() != 1 {
		t.Fatalf("loaded %d entries", c2.Len())
	}
	if v, ok := c2.Get("yeni", ""); !ok || v != "y" {
		t.Fatalf("get=%q,%v", v, ok)
	}
}

func TestStoreFailureIsNonFatal(t *testing.T) {
	st := newCountingStore()
	st.fail = true
	c, _ := newTestCache(st, 0)
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("p%d", i), "r", "")
	}
	if _, ok := c.Get("p3", ""); !ok {
		t.Fatalf("cache must keep working in memory")
	}
	err := c.Flush(context.Background())
	if !IsCacheIO(err) {
		t.Fatalf("expected CacheIOError, got %v", err)
	}
}

func TestClear(t *testing.T) {
	st := newCountingStore()
	c, _ := newTestCache(st, 0)
	c.Put("a", "1", "")
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := c.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	all, _ := st.All(context.Background(), defaultBucket)
	if c.Len() != 0 || len(all) != 0 || c.SizeBytes() != 0 {
		t.Fatalf("clear left state: len=%d stored=%d", c.Len(), len(all))
	}
}
