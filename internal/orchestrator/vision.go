package orchestrator

import (
	"context"
	"strings"
	"time"

	"asistan/internal/backend"
	"asistan/internal/postprocess"
	"asistan/internal/residency"
	"asistan/internal/vision"
)

// AnalyzeImage describes the image at path in answer to question.
func (o *Orchestrator) AnalyzeImage(ctx context.Context, path, question string) Result {
	return o.analyzeWith(ctx, question, func() (vision.Image, error) { return o.images.PrepareFile(path) })
}

// AnalyzeImageBase64 is AnalyzeImage for an uploaded, base64-encoded image.
func (o *Orchestrator) AnalyzeImageBase64(ctx context.Context, data, question string) Result {
	return o.analyzeWith(ctx, question, func() (vision.Image, error) { return o.images.PrepareBase64(data) })
}

func (o *Orchestrator) analyzeWith(ctx context.Context, question string, prepare func() (vision.Image, error)) (res Result) {
	o.turn.Lock()
	defer o.turn.Unlock()
	start := time.Now()
	defer func() {
		o.setState(Idle)
		requestsTotal.WithLabelValues("analyze_image", outcome(res)).Inc()
		requestDuration.WithLabelValues("analyze_image").Observe(time.Since(start).Seconds())
	}()
	question = strings.TrimSpace(question)
	if question == "" {
		question = DefaultImageQuestion
	}
	log := o.log.With().Str("op", "analyze_image").Logger()

	img, err := prepare()
	if err != nil {
		log.Error().Err(err).Msg("image preparation failed")
		return Result{Text: FallbackVision, Err: err}
	}

	// The language model makes room for the vision model.
	o.release(ctx, residency.Language)
	description, err := o.describe(ctx, img.JPEG, question)
	if err != nil {
		log.Error().Err(err).Str("class", string(residency.Vision)).Msg("vision inference failed")
		return Result{Text: fallbackFor(err, FallbackVision), Err: err}
	}

	text, err := o.compose(ctx, question, description)
	if err != nil {
		log.Error().Err(err).Str("class", string(residency.Language)).Msg("description compose failed")
		return Result{Text: fallbackFor(err, FallbackVision), Err: err}
	}
	o.sess.History().AppendPair("[Görsel] "+question, text)
	return Result{Text: text}
}

// describe runs the vision model over the prompt variants. The vision class
// is always released before returning.
func (o *Orchestrator) describe(ctx context.Context, jpeg []byte, question string) (string, error) {
	o.setState(AwaitingModel)
	h, err := o.res.Acquire(ctx, residency.Vision, false)
	if err != nil {
		return "", err
	}
	defer o.release(ctx, residency.Vision)

	prompts := visionPrompts(question)
	reloaded := false
	attempts := 0
	for i := 0; i < len(prompts); i++ {
		o.setState(Generating)
		msgs := []backend.Message{{Role: backend.RoleUser, Content: prompts[i], Images: [][]byte{jpeg}}}
		out, err := o.vis.Chat(ctx, h.ModelID(), msgs, o.visOpts, nil)
		if err != nil {
			if !reloaded && backend.IsTransient(err) {
				reloaded = true
				o.log.Warn().Err(err).Str("model", h.ModelID()).Msg("transient vision failure; reloading once")
				o.setState(AwaitingModel)
				if h, err = o.res.Acquire(ctx, residency.Vision, true); err != nil {
					return "", err
				}
				i--
				continue
			}
			return "", &BackendCallError{Op: "analyze_image", Class: residency.Vision, Model: h.ModelID(), Err: err}
		}
		attempts++
		if out = strings.TrimSpace(out); out != "" {
			return out, nil
		}
		o.log.Debug().Int("variant", i).Msg("empty vision output; trying next phrasing")
	}
	return "", &EmptyResponseError{Op: "analyze_image", Class: residency.Vision, Model: h.ModelID(), Attempts: attempts}
}

// compose turns the raw vision description into a Turkish answer with the
// language model: extract facts, write a draft, regenerate on quality-gate
// failures, and truncate foreign script as a last resort.
func (o *Orchestrator) compose(ctx context.Context, question, description string) (string, error) {
	o.setState(AwaitingModel)
	h, err := o.res.Acquire(ctx, residency.Language, false)
	if err != nil {
		return "", err
	}
	opts := o.langOpts
	opts.Temperature = 0.3

	o.setState(Generating)
	facts, err := o.lang.Chat(ctx, h.ModelID(), []backend.Message{
		{Role: backend.RoleSystem, Content: factsSystem},
		{Role: backend.RoleUser, Content: factsPrompt(description)},
	}, opts, nil)
	if err != nil {
		return "", &BackendCallError{Op: "extract_facts", Class: residency.Language, Model: h.ModelID(), Err: err}
	}
	if strings.TrimSpace(facts) == "" {
		facts = description
	}

	msgs := []backend.Message{
		{Role: backend.RoleSystem, Content: composeSystem},
		{Role: backend.RoleUser, Content: composePrompt(question, facts)},
	}
	draft, err := o.lang.Chat(ctx, h.ModelID(), msgs, opts, nil)
	if err != nil {
		return "", &BackendCallError{Op: "compose", Class: residency.Language, Model: h.ModelID(), Err: err}
	}
	for pass := 0; pass < maxVisionRegenerations; pass++ {
		reason := postprocess.Inspect(draft)
		if reason == postprocess.ReasonNone && strings.TrimSpace(draft) != "" {
			break
		}
		label := string(reason)
		if label == "" {
			label = "empty"
		}
		regenerationsTotal.WithLabelValues(label).Inc()
		o.log.Debug().Str("reason", label).Int("pass", pass+1).Msg("regenerating description")
		retry := append(append([]backend.Message(nil), msgs...),
			backend.Message{Role: backend.RoleAssistant, Content: draft},
			backend.Message{Role: backend.RoleUser, Content: regenerateHint(reason)})
		next, err := o.lang.Chat(ctx, h.ModelID(), retry, opts, nil)
		if err != nil {
			o.log.Warn().Err(err).Msg("regeneration failed; keeping previous draft")
			break
		}
		draft = next
	}

	o.setState(PostProcessing)
	if postprocess.Inspect(draft) == postprocess.ReasonForeignScript {
		draft = postprocess.TruncateForeign(draft)
	}
	if strings.TrimSpace(draft) == "" {
		return "", &EmptyResponseError{Op: "compose", Class: residency.Language, Model: h.ModelID(), Attempts: maxVisionRegenerations + 1}
	}
	return o.clean.Clean(draft), nil
}

func regenerateHint(r postprocess.Reason) string {
	if h, ok := regenerateHints[r]; ok {
		return h
	}
	return "Önceki cevabın boştu. Görseli kısa ve net şekilde Türkçe anlat."
}
