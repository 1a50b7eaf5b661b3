package residency

import "sync"

// Event names published by the manager.
const (
	EventAcquireStart = "acquire_start"
	EventAcquireHit   = "acquire_hit"
	EventEvict        = "evict"
	EventLoadReady    = "load_ready"
	EventLoadError    = "load_error"
	EventRelease      = "release"
	EventSweepIdle    = "sweep_idle"
)

// Event represents a residency lifecycle event.
type Event struct {
	Name    string
	Class   Class
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Publish must not block or panic.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in memory for tests and status pages.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the event names in order, optionally filtered.
func (p *MemoryPublisher) Names(filter ...string) []string {
	want := map[string]bool{}
	for _, f := range filter {
		want[f] = true
	}
	var out []string
	for _, e := range p.Events() {
		if len(want) == 0 || want[e.Name] {
			out = append(out, e.Name)
		}
	}
	return out
}
