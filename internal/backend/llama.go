//go:build llama

package backend

import (
	"context"
	"errors"

	llama "github.com/go-skynet/go-llama.cpp"
)

type llamaModel struct {
	m *llama.LLama
}

func (b *Llama) Load(ctx context.Context, model string) error {
	_, err := b.get(model)
	return err
}

func (b *Llama) get(model string) (*llamaModel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lm, ok := b.models[model]; ok {
		return lm, nil
	}
	path, err := b.modelPath(model)
	if err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{llama.SetContext(b.opts.ContextSize)}
	if b.opts.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(b.opts.GPULayers))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	lm := &llamaModel{m: m}
	b.models[model] = lm
	b.opts.Logger.Info().Str("backend", "llama").Str("model", model).Msg("model loaded")
	return lm, nil
}

func (b *Llama) Chat(ctx context.Context, model string, msgs []Message, opts Options, onToken TokenFunc) (string, error) {
	for _, m := range msgs {
		if len(m.Images) > 0 {
			return "", errors.New("llama runtime does not accept images")
		}
	}
	lm, err := b.get(model)
	if err != nil {
		return "", err
	}
	lm.m.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if onToken == nil {
			return true
		}
		return onToken(tok) == nil
	})
	text, err := lm.m.Predict(chatMLPrompt(msgs), predictOptions(opts, b.opts.Threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (b *Llama) Unload(ctx context.Context, model string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lm, ok := b.models[model]; ok {
		lm.m.Free()
		delete(b.models, model)
	}
	return nil
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}

func predictOptions(o Options, threads int) []llama.PredictOption {
	return []llama.PredictOption{
		llama.SetTokens(orInt(o.MaxTokens, 512)),
		llama.SetThreads(orInt(threads, 1)),
		llama.SetTopP(orFloat(o.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(orInt(o.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(orFloat(o.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(orFloat(o.RepeatPenalty, llama.DefaultOptions.Penalty)),
		llama.SetStopWords("<|im_end|>"),
	}
}
