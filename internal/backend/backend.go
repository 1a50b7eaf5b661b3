// Package backend talks to model inference servers.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Roles used in chat payloads.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to a model. Images carry raw encoded bytes
// (JPEG/PNG) for vision models.
type Message struct {
	Role    string
	Content string
	Images  [][]byte
}

// Options are per-call sampling settings. Zero values leave the server default.
type Options struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int
}

// TokenFunc receives streamed fragments. Returning an error stops generation.
// A nil TokenFunc requests a batch call.
type TokenFunc func(fragment string) error

// Backend is an inference server or runtime serving one or more models.
type Backend interface {
	// Chat runs a chat completion and returns the full text. When onToken is
	// non-nil fragments are delivered as they arrive.
	Chat(ctx context.Context, model string, msgs []Message, opts Options, onToken TokenFunc) (string, error)
	// ListModels returns the raw model catalog.
	ListModels(ctx context.Context) (Node, error)
	// Load warms a model so the next Chat does not pay the load cost.
	Load(ctx context.Context, model string) error
	// Unload asks the runtime to free a model's memory.
	Unload(ctx context.Context, model string) error
}

// StatusError is a non-2xx reply from an inference server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference server http error: %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// dependencyUnavailableError indicates a required runtime is not built in.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs an error for a missing runtime.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err means a runtime is not built in.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

var transientMarkers = []string{
	"out of memory",
	"cuda error",
	"busy",
	"unexpectedly stopped",
	"capacity",
	"try again",
	"connection reset",
	"eof",
}

// IsTransient reports whether a failed call is worth one reload-and-retry:
// server overload replies and runner crashes, not bad requests.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
