package residency

import (
	"context"
	"errors"
	"sync"
	"time"

	"asistan/internal/backend"
	"asistan/internal/probe"
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

// gpu simulates accelerator memory: each loaded model adds its size.
type gpu struct {
	mu      sync.Mutex
	usedGB  float64
	loads   map[Class]int
	unloads map[Class]int
	fail    map[Class]error
}

func newGPU() *gpu {
	return &gpu{loads: map[Class]int{}, unloads: map[Class]int{}, fail: map[Class]error{}}
}

func (g *gpu) probe() probe.Probe {
	return probe.Func(func(context.Context) float64 {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.usedGB
	})
}

type fakeHandle struct {
	g     *gpu
	class Class
	gb    float64
	freed bool
}

func (h *fakeHandle) ModelID() string { return string(h.class) + "-model" }

func (h *fakeHandle) Unload(context.Context) error {
	h.g.mu.Lock()
	defer h.g.mu.Unlock()
	if h.freed {
		return errors.New("double unload")
	}
	h.freed = true
	h.g.usedGB -= h.gb
	h.g.unloads[h.class]++
	return nil
}

func (g *gpu) loader(class Class, gb float64) Loader {
	return LoaderFunc{Name: string(class) + "-model", Fn: func(context.Context) (Handle, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		if err := g.fail[class]; err != nil {
			return nil, err
		}
		g.usedGB += gb
		g.loads[class]++
		return &fakeHandle{g: g, class: class, gb: gb}, nil
	}}
}

func (g *gpu) loaders(gb float64) map[Class]Loader {
	return map[Class]Loader{
		Language: g.loader(Language, gb),
		Vision:   g.loader(Vision, gb),
		Speech:   g.loader(Speech, gb),
	}
}

func newTestManager(g *gpu, ceiling, highWater, gb float64) (*Manager, *MemoryPublisher, *fakeClock) {
	pub := NewMemoryPublisher()
	clk := newFakeClock()
	m := New(Config{
		CeilingGB: ceiling,
		HighWater: highWater,
		Probe:     g.probe(),
		Loaders:   g.loaders(gb),
		Publisher: pub,
		Now:       clk.Now,
	})
	return m, pub, clk
}

// fakeBackend serves a fixed catalog and records load/unload calls.
type fakeBackend struct {
	mu       sync.Mutex
	catalog  backend.Node
	listErr  error
	lists    int
	loaded   []string
	unloaded []string
	loadErr  error
}

func (f *fakeBackend) Chat(context.Context, string, []backend.Message, backend.Options, backend.TokenFunc) (string, error) {
	return "", nil
}

func (f *fakeBackend) ListModels(context.Context) (backend.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.catalog, f.listErr
}

func (f *fakeBackend) Load(_ context.Context, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, model)
	return f.loadErr
}

func (f *fakeBackend) Unload(_ context.Context, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloaded = append(f.unloaded, model)
	return nil
}
