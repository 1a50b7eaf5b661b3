// Package orchestrator runs conversation turns: cache lookup, model
// acquisition, payload assembly, invocation, post-processing and history.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"asistan/internal/backend"
	"asistan/internal/cache"
	"asistan/internal/postprocess"
	"asistan/internal/provider"
	"asistan/internal/residency"
	"asistan/internal/session"
	"asistan/internal/speech"
	"asistan/internal/vision"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultHistoryPairs    = 10
	defaultStyleFirstTurns = 3
	maxVisionRegenerations = 2
)

// Residency is the part of the residency manager the orchestrator needs.
type Residency interface {
	Acquire(ctx context.Context, class residency.Class, force bool) (residency.Handle, error)
	Release(ctx context.Context, class residency.Class) error
}

// Config wires the orchestrator's collaborators. Residency, Language and
// Session are required; everything else is optional.
type Config struct {
	Residency Residency
	Language  backend.Backend
	// Vision defaults to Language.
	Vision  backend.Backend
	Session *session.Manager
	Cache   *cache.Cache
	// CacheScope separates cache entries of different model setups.
	CacheScope  string
	Context     provider.Provider
	Cleaner     *postprocess.Cleaner
	Images      *vision.Preparer
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer

	SystemPrompt    string
	HistoryPairs    int
	StylePolicy     StylePolicy
	StyleFirstTurns int
	Examples        []Example

	LanguageOptions backend.Options
	VisionOptions   backend.Options

	Logger zerolog.Logger
}

// Overrides adjust a single Generate call.
type Overrides struct {
	// OnToken receives raw streamed fragments. The final Result.Text is the
	// post-processed answer and may differ from their concatenation.
	OnToken backend.TokenFunc
	// Context supplies external context directly, bypassing the provider.
	Context string
	// SkipContext disables external context lookup.
	SkipContext bool
	Temperature *float64
	MaxTokens   int
}

// Result is the outcome of an operation. Text is always safe to show; Err
// carries the classified failure, if any.
type Result struct {
	Text        string
	Cached      bool
	UsedContext bool
	Err         error
}

// Orchestrator serves one conversation session.
type Orchestrator struct {
	// turn serializes operations so one session never runs two turns at once.
	turn  sync.Mutex
	state atomic.Int32

	res      Residency
	lang     backend.Backend
	vis      backend.Backend
	sess     *session.Manager
	cache    *cache.Cache
	scope    string
	ctxp     provider.Provider
	clean    *postprocess.Cleaner
	images   *vision.Preparer
	stt      speech.Transcriber
	tts      speech.Synthesizer
	system   string
	pairs    int
	policy   StylePolicy
	firstN   int
	examples []Example
	langOpts backend.Options
	visOpts  backend.Options
	log      zerolog.Logger
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Residency == nil || cfg.Language == nil || cfg.Session == nil {
		return nil, fmt.Errorf("orchestrator: residency, language backend and session are required")
	}
	o := &Orchestrator{
		res:      cfg.Residency,
		lang:     cfg.Language,
		vis:      cfg.Vision,
		sess:     cfg.Session,
		cache:    cfg.Cache,
		scope:    cfg.CacheScope,
		ctxp:     cfg.Context,
		clean:    cfg.Cleaner,
		images:   cfg.Images,
		stt:      cfg.Transcriber,
		tts:      cfg.Synthesizer,
		system:   cfg.SystemPrompt,
		pairs:    cfg.HistoryPairs,
		policy:   cfg.StylePolicy,
		firstN:   cfg.StyleFirstTurns,
		examples: cfg.Examples,
		langOpts: cfg.LanguageOptions,
		visOpts:  cfg.VisionOptions,
		log:      cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}
	if o.vis == nil {
		o.vis = o.lang
	}
	if o.clean == nil {
		o.clean = postprocess.New(postprocess.Options{})
	}
	if o.images == nil {
		o.images = vision.NewPreparer(0, 0)
	}
	if o.system == "" {
		o.system = DefaultSystemPrompt
	}
	if o.pairs <= 0 {
		o.pairs = defaultHistoryPairs
	}
	if o.policy == "" {
		o.policy = StyleFirstTurns
	}
	if o.firstN <= 0 {
		o.firstN = defaultStyleFirstTurns
	}
	if o.examples == nil {
		o.examples = DefaultExamples
	}
	return o, nil
}

// State returns the current state machine position.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

// Session returns the session manager.
func (o *Orchestrator) Session() *session.Manager { return o.sess }

// Generate answers prompt. It never panics on backend failure: Result.Text is
// a cleaned answer or a fixed fallback, and Result.Err says what went wrong.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, ov *Overrides) (res Result) {
	o.turn.Lock()
	defer o.turn.Unlock()
	start := time.Now()
	defer func() {
		o.setState(Idle)
		requestsTotal.WithLabelValues("generate", outcome(res)).Inc()
		requestDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	}()
	if ov == nil {
		ov = &Overrides{}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Result{Text: o.clean.Fallback(), Err: ErrEmptyPrompt}
	}
	log := o.log.With().Str("op", "generate").Logger()

	extCtx := o.externalContext(ctx, prompt, ov)
	useCache := extCtx == "" && o.cache != nil
	if useCache {
		if text, ok := o.cache.Get(prompt, o.scope); ok {
			log.Debug().Msg("cache hit")
			if ov.OnToken != nil {
				_ = ov.OnToken(text)
			}
			o.sess.History().AppendPair(prompt, text)
			return Result{Text: text, Cached: true}
		}
	}

	o.setState(AwaitingModel)
	h, err := o.res.Acquire(ctx, residency.Language, false)
	if err != nil {
		log.Error().Err(err).Str("class", string(residency.Language)).Msg("acquire failed")
		return Result{Text: fallbackFor(err, o.clean.Fallback()), UsedContext: extCtx != "", Err: err}
	}

	msgs := o.buildMessages(prompt, extCtx)
	opts := o.langOpts
	if ov.Temperature != nil {
		opts.Temperature = *ov.Temperature
	}
	if ov.MaxTokens > 0 {
		opts.MaxTokens = ov.MaxTokens
	}

	o.setState(Generating)
	raw, err := o.lang.Chat(ctx, h.ModelID(), msgs, opts, ov.OnToken)
	if err != nil {
		berr := &BackendCallError{Op: "generate", Class: residency.Language, Model: h.ModelID(), Err: err}
		log.Error().Err(err).Str("class", string(residency.Language)).Str("model", h.ModelID()).Msg("model call failed")
		return Result{Text: o.clean.Fallback(), UsedContext: extCtx != "", Err: berr}
	}
	if strings.TrimSpace(raw) == "" {
		eerr := &EmptyResponseError{Op: "generate", Class: residency.Language, Model: h.ModelID(), Attempts: 1}
		log.Warn().Err(eerr).Msg("empty model output")
		return Result{Text: o.clean.Fallback(), UsedContext: extCtx != "", Err: eerr}
	}

	o.setState(PostProcessing)
	text := o.clean.Clean(raw)
	if useCache {
		o.cache.Put(prompt, text, o.scope)
	}
	o.sess.History().AppendPair(prompt, text)
	log.Debug().Str("model", h.ModelID()).Bool("context", extCtx != "").Int("chars", len(text)).Msg("generated")
	return Result{Text: text, UsedContext: extCtx != ""}
}

func (o *Orchestrator) externalContext(ctx context.Context, prompt string, ov *Overrides) string {
	if ov.SkipContext {
		return ""
	}
	if c := strings.TrimSpace(ov.Context); c != "" {
		return c
	}
	if o.ctxp == nil {
		return ""
	}
	text, ok := o.ctxp.Fetch(ctx, prompt)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

// includeExamples applies the style policy to the current session.
func (o *Orchestrator) includeExamples() bool {
	switch o.policy {
	case StyleAlways:
		return true
	case StyleNever:
		return false
	}
	return o.sess.History().UserTurnsSeen() < o.firstN
}

func (o *Orchestrator) buildMessages(prompt, extCtx string) []backend.Message {
	system := o.system
	if extCtx != "" {
		system = contextBlock(system, extCtx)
	}
	msgs := []backend.Message{{Role: backend.RoleSystem, Content: system}}
	if o.includeExamples() {
		for _, ex := range o.examples {
			msgs = append(msgs,
				backend.Message{Role: backend.RoleUser, Content: ex.User},
				backend.Message{Role: backend.RoleAssistant, Content: ex.Assistant})
		}
	}
	for _, t := range o.sess.History().Window(o.pairs) {
		role := backend.RoleUser
		if t.Role == session.RoleAssistant {
			role = backend.RoleAssistant
		}
		msgs = append(msgs, backend.Message{Role: role, Content: t.Text})
	}
	return append(msgs, backend.Message{Role: backend.RoleUser, Content: prompt})
}

// release frees a class even when ctx is already canceled.
func (o *Orchestrator) release(ctx context.Context, class residency.Class) {
	if err := o.res.Release(context.WithoutCancel(ctx), class); err != nil {
		o.log.Warn().Err(err).Str("class", string(class)).Msg("release failed")
	}
}
