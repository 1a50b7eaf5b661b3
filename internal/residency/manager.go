package residency

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asistan/internal/probe"
	"asistan/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultCeilingGB = 7.0
	defaultHighWater = 0.7
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	CeilingGB float64
	// HighWater is the fraction of CeilingGB above which residents are evicted.
	HighWater float64
	Probe     probe.Probe
	Loaders   map[Class]Loader
	// Reclaim runs after every unload so the process can return memory.
	Reclaim   func(ctx context.Context)
	Publisher EventPublisher
	Logger    zerolog.Logger
	// Now is the clock; tests inject a fake one.
	Now func() time.Time
}

type slot struct {
	handle      Handle
	lastUsed    time.Time
	footprintGB float64
}

// Manager owns the resident model slots.
type Manager struct {
	// op serializes acquire/release so loads never interleave; mu guards state.
	op sync.Mutex
	mu sync.RWMutex

	ceiling   float64
	highWater float64
	probe     probe.Probe
	loaders   map[Class]Loader
	reclaim   func(ctx context.Context)
	pub       EventPublisher
	log       zerolog.Logger
	now       func() time.Time

	slots     map[Class]*slot
	loads     uint64
	evictions uint64
	lastErr   string
}

// New constructs a Manager from Config.
func New(cfg Config) *Manager {
	m := &Manager{
		ceiling:   cfg.CeilingGB,
		highWater: cfg.HighWater,
		probe:     cfg.Probe,
		loaders:   make(map[Class]Loader, len(cfg.Loaders)),
		reclaim:   cfg.Reclaim,
		pub:       cfg.Publisher,
		log:       cfg.Logger.With().Str("component", "residency").Logger(),
		now:       cfg.Now,
		slots:     make(map[Class]*slot),
	}
	if m.ceiling <= 0 {
		m.ceiling = defaultCeilingGB
	}
	if m.highWater <= 0 || m.highWater > 1 {
		m.highWater = defaultHighWater
	}
	if m.probe == nil {
		m.probe = probe.Static(0)
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	for c, l := range cfg.Loaders {
		m.loaders[c] = l
	}
	return m
}

// Threshold is the usage in GB above which Acquire evicts.
func (m *Manager) Threshold() float64 { return m.ceiling * m.highWater }

// Acquire returns the resident handle for class, loading it when absent or
// when force is set. Before loading, the least recently used other classes are
// evicted while probed usage exceeds the high-water mark.
func (m *Manager) Acquire(ctx context.Context, class Class, force bool) (Handle, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	loader, ok := m.loaders[class]
	if !ok {
		return nil, &ModelLoadError{Class: class, Err: fmt.Errorf("no loader configured")}
	}

	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	if s, ok := m.slots[class]; ok && !force {
		s.lastUsed = m.now()
		h := s.handle
		m.mu.Unlock()
		m.pub.Publish(Event{Name: EventAcquireHit, Class: class, ModelID: h.ModelID()})
		return h, nil
	}
	m.mu.Unlock()

	m.pub.Publish(Event{Name: EventAcquireStart, Class: class, ModelID: loader.Model(), Fields: map[string]any{"force": force}})
	if force {
		m.releaseLocked(ctx, class)
	}

	before := m.evictUntilUnder(ctx, class)

	h, err := loader.Load(ctx)
	if err != nil {
		lerr := &ModelLoadError{Class: class, ModelID: loader.Model(), Err: err}
		m.mu.Lock()
		m.lastErr = lerr.Error()
		m.mu.Unlock()
		loadErrorsTotal.WithLabelValues(string(class)).Inc()
		m.pub.Publish(Event{Name: EventLoadError, Class: class, ModelID: loader.Model(), Fields: map[string]any{"error": err.Error()}})
		m.log.Error().Err(err).Str("op", "acquire").Str("class", string(class)).Str("model", loader.Model()).Msg("model load failed")
		return nil, lerr
	}

	after := m.probe.CurrentUsage(ctx)
	footprint := after - before
	if footprint < 0 {
		footprint = 0
	}
	m.mu.Lock()
	m.slots[class] = &slot{handle: h, lastUsed: m.now(), footprintGB: footprint}
	m.loads++
	m.lastErr = ""
	m.mu.Unlock()

	loadsTotal.WithLabelValues(string(class)).Inc()
	residentGauge.WithLabelValues(string(class)).Set(1)
	m.pub.Publish(Event{Name: EventLoadReady, Class: class, ModelID: h.ModelID(), Fields: map[string]any{"footprint_gb": footprint, "usage_gb": after}})
	m.log.Info().Str("op", "acquire").Str("class", string(class)).Str("model", h.ModelID()).
		Float64("usage_gb", after).Float64("footprint_gb", footprint).Float64("ceiling_gb", m.ceiling).
		Msg("model loaded")
	return h, nil
}

// evictUntilUnder evicts LRU residents other than keep while usage is above
// the threshold, re-probing after each eviction. It returns the final usage.
func (m *Manager) evictUntilUnder(ctx context.Context, keep Class) float64 {
	usage := m.probe.CurrentUsage(ctx)
	for usage > m.Threshold() {
		victim, ok := m.lruExcept(keep)
		if !ok {
			break
		}
		m.log.Info().Str("op", "evict").Str("class", string(victim)).Str("keep", string(keep)).
			Float64("usage_gb", usage).Float64("threshold_gb", m.Threshold()).Msg("memory above high-water mark; evicting")
		m.releaseLocked(ctx, victim)
		m.mu.Lock()
		m.evictions++
		m.mu.Unlock()
		evictionsTotal.WithLabelValues(string(victim)).Inc()
		m.pub.Publish(Event{Name: EventEvict, Class: victim, Fields: map[string]any{"keep": string(keep), "usage_gb": usage}})
		usage = m.probe.CurrentUsage(ctx)
	}
	return usage
}

func (m *Manager) lruExcept(keep Class) (Class, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var victim Class
	var oldest time.Time
	found := false
	for c, s := range m.slots {
		if c == keep {
			continue
		}
		// ties broken by class name for determinism
		if !found || s.lastUsed.Before(oldest) || (s.lastUsed.Equal(oldest) && c < victim) {
			victim, oldest, found = c, s.lastUsed, true
		}
	}
	return victim, found
}

// Release unloads class if resident. Releasing an absent class is a no-op.
func (m *Manager) Release(ctx context.Context, class Class) error {
	if !class.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	m.op.Lock()
	defer m.op.Unlock()
	m.releaseLocked(ctx, class)
	return nil
}

// releaseLocked requires m.op to be held.
func (m *Manager) releaseLocked(ctx context.Context, class Class) {
	m.mu.Lock()
	s, ok := m.slots[class]
	if ok {
		delete(m.slots, class)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := s.handle.Unload(ctx); err != nil {
		m.log.Warn().Err(err).Str("op", "release").Str("class", string(class)).Str("model", s.handle.ModelID()).Msg("unload failed")
	}
	if m.reclaim != nil {
		m.reclaim(ctx)
	}
	residentGauge.WithLabelValues(string(class)).Set(0)
	m.pub.Publish(Event{Name: EventRelease, Class: class, ModelID: s.handle.ModelID()})
	m.log.Info().Str("op", "release").Str("class", string(class)).Str("model", s.handle.ModelID()).
		Float64("usage_gb", m.probe.CurrentUsage(ctx)).Msg("model released")
}

// SweepIdle releases every resident whose last access is older than timeout
// and returns the released classes in sorted order.
func (m *Manager) SweepIdle(ctx context.Context, timeout time.Duration) []Class {
	m.op.Lock()
	defer m.op.Unlock()
	now := m.now()
	var idle []Class
	m.mu.RLock()
	for c, s := range m.slots {
		if now.Sub(s.lastUsed) > timeout {
			idle = append(idle, c)
		}
	}
	m.mu.RUnlock()
	sort.Slice(idle, func(i, j int) bool { return idle[i] < idle[j] })
	for _, c := range idle {
		m.log.Info().Str("op", "sweep_idle").Str("class", string(c)).Dur("timeout", timeout).Msg("idle timeout reached")
		m.releaseLocked(ctx, c)
	}
	if len(idle) > 0 {
		m.pub.Publish(Event{Name: EventSweepIdle, Fields: map[string]any{"released": len(idle)}})
	}
	return idle
}

// ReleaseAll unloads every resident class.
func (m *Manager) ReleaseAll(ctx context.Context) {
	for _, c := range m.Resident() {
		_ = m.Release(ctx, c)
	}
}

// Resident returns the resident classes in sorted order.
func (m *Manager) Resident() []Class {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Class, 0, len(m.slots))
	for c := range m.slots {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsResident reports whether class currently holds a handle.
func (m *Manager) IsResident(class Class) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.slots[class]
	return ok
}

// Status summarizes resident slots, counters and probe readings.
func (m *Manager) Status(ctx context.Context) types.ResidencyStatus {
	m.mu.RLock()
	st := types.ResidencyStatus{
		CeilingGB:      m.ceiling,
		HighWater:      m.highWater,
		LoadsTotal:     m.loads,
		EvictionsTotal: m.evictions,
		LastError:      m.lastErr,
		Slots:          make([]types.SlotStatus, 0, len(m.slots)),
	}
	for c, s := range m.slots {
		st.Slots = append(st.Slots, types.SlotStatus{
			Class:       string(c),
			ModelID:     s.handle.ModelID(),
			LastUsed:    s.lastUsed.Unix(),
			FootprintGB: s.footprintGB,
		})
	}
	m.mu.RUnlock()
	sort.Slice(st.Slots, func(i, j int) bool { return st.Slots[i].Class < st.Slots[j].Class })
	st.Probe = probe.Info(ctx, m.probe)
	return st
}
