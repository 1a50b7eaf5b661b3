// Package residency decides which model classes occupy accelerator memory.
//
// Three classes (language, vision, speech) share one memory ceiling. Acquire
// returns a resident handle, lazily loading the class and evicting the least
// recently used other class while probed usage is above the high-water mark.
// Release and SweepIdle free memory explicitly or after an idle timeout.
//
// The manager guards its state with a mutex, but callers are expected to
// serialize requests: concurrent requests for different classes thrash.
package residency
