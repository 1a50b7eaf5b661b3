package orchestrator

import (
	"context"
	"fmt"
	"time"

	"asistan/internal/residency"
	"asistan/internal/speech"
)

// Transcribe converts audio to text through the speech class. The speech
// model stays resident afterwards and is reclaimed by the idle sweep or by
// eviction.
func (o *Orchestrator) Transcribe(ctx context.Context, samples []float32, rate int) (res Result) {
	o.turn.Lock()
	defer o.turn.Unlock()
	start := time.Now()
	defer func() {
		o.setState(Idle)
		requestsTotal.WithLabelValues("transcribe", outcome(res)).Inc()
		requestDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	}()
	if o.stt == nil {
		return Result{Text: FallbackSpeech, Err: ErrSpeechDisabled}
	}
	log := o.log.With().Str("op", "transcribe").Str("class", string(residency.Speech)).Logger()

	o.setState(AwaitingModel)
	h, err := o.res.Acquire(ctx, residency.Speech, false)
	if err != nil {
		log.Error().Err(err).Msg("acquire failed")
		return Result{Text: fallbackFor(err, FallbackSpeech), Err: err}
	}
	o.setState(Generating)
	text, err := o.stt.Transcribe(ctx, samples, rate)
	if err != nil {
		berr := &BackendCallError{Op: "transcribe", Class: residency.Speech, Model: h.ModelID(), Err: err}
		log.Error().Err(err).Str("model", h.ModelID()).Msg("transcription failed")
		return Result{Text: FallbackSpeech, Err: berr}
	}
	if text == "" {
		return Result{Text: FallbackSpeech, Err: &EmptyResponseError{Op: "transcribe", Class: residency.Speech, Model: h.ModelID(), Attempts: 1}}
	}
	log.Debug().Int("samples", len(samples)).Int("rate", rate).Msg("transcribed")
	return Result{Text: text}
}

// Speak synthesizes text. Synthesis runs on the CPU and does not touch
// residency.
func (o *Orchestrator) Speak(ctx context.Context, text string) (<-chan speech.Chunk, error) {
	if o.tts == nil {
		return nil, ErrSpeechDisabled
	}
	ch, err := o.tts.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("speak: %w", err)
	}
	return ch, nil
}
