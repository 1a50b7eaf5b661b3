package residency

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asistan/internal/backend"
)

// nameKeys are the catalog fields that carry a model identifier.
var nameKeys = map[string]bool{"name": true, "model": true, "id": true}

// ExtractModelNames walks a catalog and collects every string value stored
// under a name, model or id key, at any depth. The result is sorted and
// de-duplicated.
func ExtractModelNames(n backend.Node) []string {
	seen := map[string]bool{}
	collectNames(n, seen)
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func collectNames(n backend.Node, seen map[string]bool) {
	switch n.Kind {
	case backend.KindMap:
		for _, k := range n.Keys() {
			child := n.Fields[k]
			if nameKeys[k] && child.Kind == backend.KindLeaf && child.IsString && child.Value != "" {
				seen[child.Value] = true
				continue
			}
			collectNames(child, seen)
		}
	case backend.KindList:
		for _, item := range n.Items {
			collectNames(item, seen)
		}
	}
}

func baseName(s string) string {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}

// ResolveName maps a requested model name to one of available. An exact
// match wins; otherwise a candidate whose base name (tag stripped) equals the
// requested base name or starts with it. Candidates are ranked in sorted
// order so the choice is deterministic. It returns false when nothing matches.
func ResolveName(requested string, available []string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", false
	}
	sorted := append([]string(nil), available...)
	sort.Strings(sorted)
	for _, a := range sorted {
		if a == requested {
			return a, true
		}
	}
	want := baseName(requested)
	for _, a := range sorted {
		if baseName(a) == want {
			return a, true
		}
	}
	for _, a := range sorted {
		if strings.HasPrefix(baseName(a), want) {
			return a, true
		}
	}
	return "", false
}

// Resolver turns configured model names into names the backend knows,
// caching the catalog for a short time.
type Resolver struct {
	Backend  backend.Backend
	Fallback string
	TTL      time.Duration
	Logger   zerolog.Logger

	mu      sync.Mutex
	names   []string
	fetched time.Time
}

// Resolve returns the resolved name for requested, then the resolved fallback,
// then requested unchanged when the catalog is unavailable or has no match.
func (r *Resolver) Resolve(ctx context.Context, requested string) string {
	names := r.catalog(ctx)
	if name, ok := ResolveName(requested, names); ok {
		return name
	}
	if r.Fallback != "" {
		if name, ok := ResolveName(r.Fallback, names); ok {
			r.Logger.Warn().Str("requested", requested).Str("model", name).Msg("requested model not in catalog; using fallback")
			return name
		}
	}
	if len(names) > 0 {
		r.Logger.Warn().Str("requested", requested).Strs("available", names).Msg("model not in catalog")
	}
	return requested
}

func (r *Resolver) catalog(ctx context.Context) []string {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names != nil && time.Since(r.fetched) < ttl {
		return r.names
	}
	cat, err := r.Backend.ListModels(ctx)
	if err != nil {
		r.Logger.Debug().Err(err).Msg("model catalog unavailable")
		return r.names
	}
	r.names = ExtractModelNames(cat)
	r.fetched = time.Now()
	return r.names
}

// BackendLoader loads a class by warming its model on a backend.
type BackendLoader struct {
	Backend  backend.Backend
	Name     string
	Resolver *Resolver
}

func (l *BackendLoader) Model() string { return l.Name }

func (l *BackendLoader) Load(ctx context.Context) (Handle, error) {
	name := l.Name
	if l.Resolver != nil {
		name = l.Resolver.Resolve(ctx, l.Name)
	}
	if err := l.Backend.Load(ctx, name); err != nil {
		return nil, err
	}
	return &BackendHandle{Backend: l.Backend, Model: name}, nil
}

// BackendHandle is a model resident on a backend.
type BackendHandle struct {
	Backend backend.Backend
	Model   string
}

func (h *BackendHandle) ModelID() string { return h.Model }

func (h *BackendHandle) Unload(ctx context.Context) error { return h.Backend.Unload(ctx, h.Model) }
