package residency

import (
	"context"
	"fmt"
	"strings"
)

// Class is a model class. The set is closed.
type Class string

const (
	Language Class = "language"
	Vision   Class = "vision"
	Speech   Class = "speech"
)

// Classes lists every known class.
var Classes = []Class{Language, Vision, Speech}

func (c Class) Valid() bool {
	switch c {
	case Language, Vision, Speech:
		return true
	}
	return false
}

// ParseClass accepts class names and the short aliases llm, vlm and stt.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "language", "llm":
		return Language, nil
	case "vision", "vlm":
		return Vision, nil
	case "speech", "stt":
		return Speech, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownClass, s)
}

// Handle is a loaded model. It is owned by the manager; callers borrow it for
// the duration of one call and must not unload it themselves.
type Handle interface {
	ModelID() string
	Unload(ctx context.Context) error
}

// Loader loads the model for one class.
type Loader interface {
	// Model names the model the loader will bring up, for logs and errors.
	Model() string
	Load(ctx context.Context) (Handle, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc struct {
	Name string
	Fn   func(ctx context.Context) (Handle, error)
}

func (l LoaderFunc) Model() string { return l.Name }

func (l LoaderFunc) Load(ctx context.Context) (Handle, error) { return l.Fn(ctx) }

// StaticHandle is a Handle with nothing to free.
type StaticHandle string

func (h StaticHandle) ModelID() string { return string(h) }

func (StaticHandle) Unload(context.Context) error { return nil }
