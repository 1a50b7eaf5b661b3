package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LlamaOptions configures the in-process runtime.
type LlamaOptions struct {
	ModelsDir   string
	ContextSize int
	Threads     int
	GPULayers   int
	Logger      zerolog.Logger
}

// Llama runs GGUF models in-process. Without the llama build tag every
// inference call fails with ErrDependencyUnavailable, but the catalog still
// lists the models on disk.
type Llama struct {
	opts   LlamaOptions
	mu     sync.Mutex
	models map[string]*llamaModel
}

// NewLlama constructs the runtime.
func NewLlama(o LlamaOptions) *Llama {
	if o.ContextSize <= 0 {
		o.ContextSize = 4096
	}
	if o.Threads <= 0 {
		o.Threads = 4
	}
	return &Llama{opts: o, models: make(map[string]*llamaModel)}
}

func (b *Llama) ListModels(context.Context) (Node, error) {
	models, err := ScanGGUF(b.opts.ModelsDir)
	if err != nil {
		return Node{}, err
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.ID)
	}
	return ModelList(names...), nil
}

// modelPath finds the file for model among the scanned GGUF files.
func (b *Llama) modelPath(model string) (string, error) {
	models, err := ScanGGUF(b.opts.ModelsDir)
	if err != nil {
		return "", err
	}
	want := strings.TrimSuffix(model, ".gguf")
	for _, m := range models {
		if m.ID == want {
			return m.Path, nil
		}
	}
	return "", fmt.Errorf("model %q not found in %s", model, b.opts.ModelsDir)
}

// chatMLPrompt renders messages in the ChatML template used by Qwen-family
// instruction models.
func chatMLPrompt(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString("<|im_start|>")
		sb.WriteString(m.Role)
		sb.WriteString("\n")
		sb.WriteString(m.Content)
		sb.WriteString("<|im_end|>\n")
	}
	sb.WriteString("<|im_start|>assistant\n")
	return sb.String()
}
