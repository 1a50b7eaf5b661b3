//go:build !llama

package backend

import "context"

// llamaModel holds nothing in builds without the llama tag.
type llamaModel struct{}

const llamaMissing = "llama support not built (missing 'llama' build tag)"

func (b *Llama) Load(ctx context.Context, model string) error {
	return ErrDependencyUnavailable(llamaMissing)
}

func (b *Llama) Chat(ctx context.Context, model string, msgs []Message, opts Options, onToken TokenFunc) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return "", ErrDependencyUnavailable(llamaMissing)
}

func (b *Llama) Unload(context.Context, string) error { return nil }
