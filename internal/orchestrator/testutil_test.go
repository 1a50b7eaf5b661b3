package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"asistan/internal/backend"
	"asistan/internal/cache"
	"asistan/internal/provider"
	"asistan/internal/residency"
	"asistan/internal/session"
	"asistan/internal/store"
)

// call records one Chat invocation.
type call struct {
	model string
	msgs  []backend.Message
	opts  backend.Options
}

// scriptBackend answers Chat from a queue of replies; when the queue is
// empty it echoes a fixed answer.
type scriptBackend struct {
	mu      sync.Mutex
	replies []reply
	calls   []call
	def     string
}

type reply struct {
	text string
	err  error
}

func (b *scriptBackend) push(text string, err error) {
	b.mu.Lock()
	b.replies = append(b.replies, reply{text, err})
	b.mu.Unlock()
}

func (b *scriptBackend) Chat(_ context.Context, model string, msgs []backend.Message, opts backend.Options, onToken backend.TokenFunc) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, call{model: model, msgs: msgs, opts: opts})
	r := reply{text: b.def}
	if len(b.replies) > 0 {
		r = b.replies[0]
		b.replies = b.replies[1:]
	}
	b.mu.Unlock()
	if r.err != nil {
		return r.text, r.err
	}
	if onToken != nil {
		for _, f := range splitFragments(r.text) {
			if err := onToken(f); err != nil {
				return "", err
			}
		}
	}
	return r.text, nil
}

func (b *scriptBackend) ListModels(context.Context) (backend.Node, error) { return nil, nil }
func (b *scriptBackend) Load(context.Context, string) error { return nil }
func (b *scriptBackend) Unload(context.Context, string) error { return nil }

func (b *scriptBackend) Calls() []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]call(nil), b.calls...)
}

func splitFragments(s string) []string {
	var out []string
	for len(s) > 4 {
		out = append(out, s[:4])
		s = s[4:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

type fixture struct {
	o     *Orchestrator
	lang  *scriptBackend
	vis   *scriptBackend
	res   *residency.Manager
	pub   *residency.MemoryPublisher
	cache *cache.Cache
	sess  *session.Manager
	fails map[residency.Class]error
}

type fixtureOpts struct {
	context  provider.Provider
	policy   StylePolicy
	noCache  bool
	speechOK bool
}

func newFixture(t *testing.T, fo fixtureOpts) *fixture {
	t.Helper()
	f := &fixture{
		lang:  &scriptBackend{def: "Tamam."},
		vis:   &scriptBackend{def: "A cat on a sofa."},
		pub:   residency.NewMemoryPublisher(),
		fails: map[residency.Class]error{},
	}
	loaders := map[residency.Class]residency.Loader{}
	for _, c := range residency.Classes {
		loaders[c] = residency.LoaderFunc{Name: string(c) + "-model", Fn: func(context.Context) (residency.Handle, error) {
			if err := f.fails[c]; err != nil {
				return nil, err
			}
			return residency.StaticHandle(string(c) + "-model"), nil
		}}
	}
	f.res = residency.New(residency.Config{CeilingGB: 8, Loaders: loaders, Publisher: f.pub})
	st := store.NewMemory()
	f.sess = session.NewManager(session.Config{MaxPairs: 3, SaveToDisk: true, Store: st, NewID: seqIDs()})
	if !fo.noCache {
		f.cache = cache.New(cache.Config{Enabled: true, TTL: time.Hour, Store: st})
	}
	cfg := Config{
		Residency:   f.res,
		Language:    f.lang,
		Vision:      f.vis,
		Session:     f.sess,
		Cache:       f.cache,
		Context:     fo.context,
		StylePolicy: fo.policy,
	}
	if fo.speechOK {
		cfg.Transcriber = fakeSTT{text: "merhaba"}
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	f.o = o
	return f
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
}

type fakeSTT struct {
	text string
	err  error
}

func (s fakeSTT) Transcribe(context.Context, []float32, int) (string, error) { return s.text, s.err }

var errBoom = errors.New("boom")
