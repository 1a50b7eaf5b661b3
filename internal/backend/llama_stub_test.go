//go:build !llama

package backend

import (
	"context"
	"testing"
)

func TestLlamaStubUnavailable(t *testing.T) {
	b := NewLlama(LlamaOptions{ModelsDir: t.TempDir()})
	if err := b.Load(context.Background(), "m"); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if _, err := b.Chat(context.Background(), "m", nil, Options{}, nil); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if err := b.Unload(context.Background(), "m"); err != nil {
		t.Fatalf("unload: %v", err)
	}
}
