// Package app assembles the assistant core from configuration and owns its
// lifecycle: startup, background maintenance and shutdown cleanup.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asistan/internal/backend"
	"asistan/internal/cache"
	"asistan/internal/config"
	"asistan/internal/logging"
	"asistan/internal/orchestrator"
	"asistan/internal/postprocess"
	"asistan/internal/probe"
	"asistan/internal/provider"
	"asistan/internal/residency"
	"asistan/internal/scheduler"
	"asistan/internal/session"
	"asistan/internal/speech"
	"asistan/internal/store"
	"asistan/internal/vision"
	"asistan/pkg/types"
)

// speechModel names the speech class in residency status.
const speechModel = "whisper"

// Deps overrides collaborators normally built from configuration. Zero
// fields are built from Config.
type Deps struct {
	Logger   zerolog.Logger
	Store    store.Store
	Probe    probe.Probe
	Language backend.Backend
	Vision   backend.Backend
	Now      func() time.Time
}

// App is a fully wired assistant.
type App struct {
	Config       config.Config
	Store        store.Store
	Residency    *residency.Manager
	Cache        *cache.Cache
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
	Language     backend.Backend
	Vision       backend.Backend
	Whisper      *speech.Whisper
	Piper        *speech.Piper

	log     zerolog.Logger
	now     func() time.Time
	started time.Time

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and builds every component. Persisted cache entries are
// restored; a cache load failure is logged and does not fail startup.
func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := deps.Logger
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	a := &App{Config: cfg, log: logging.Component(log, "app"), now: now, started: now()}

	st := deps.Store
	if st == nil {
		var err error
		if st, err = store.Open(cfg.Storage); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	a.Store = st

	a.Language = deps.Language
	if a.Language == nil {
		a.Language = newBackend(cfg.LLM, logging.Component(log, "llm"))
	}
	a.Vision = deps.Vision
	if a.Vision == nil {
		if sameServer(cfg.LLM, cfg.VLM) {
			a.Vision = a.Language
		} else {
			a.Vision = newBackend(cfg.VLM, logging.Component(log, "vlm"))
		}
	}

	loaders := map[residency.Class]residency.Loader{
		residency.Language: &residency.BackendLoader{
			Backend:  a.Language,
			Name:     cfg.LLM.Model,
			Resolver: &residency.Resolver{Backend: a.Language, Fallback: cfg.LLM.FallbackModel, Logger: log},
		},
		residency.Vision: &residency.BackendLoader{
			Backend:  a.Vision,
			Name:     cfg.VLM.Model,
			Resolver: &residency.Resolver{Backend: a.Vision, Fallback: cfg.VLM.FallbackModel, Logger: log},
		},
	}
	if cfg.STT.Enabled {
		a.Whisper = speech.NewWhisper(cfg.STT.ServerURL, speech.WhisperOptions{
			Language:       cfg.STT.Language,
			RequestTimeout: config.Seconds(cfg.STT.TimeoutSec),
			Logger:         logging.Component(log, "stt"),
		})
		loaders[residency.Speech] = residency.LoaderFunc{Name: speechModel, Fn: func(ctx context.Context) (residency.Handle, error) {
			if err := a.Whisper.Ping(ctx); err != nil {
				return nil, err
			}
			return residency.StaticHandle(speechModel), nil
		}}
	}
	if cfg.TTS.Enabled {
		p := speech.NewPiper(cfg.TTS.PiperBinary, cfg.TTS.Voice, cfg.TTS.SampleRate, logging.Component(log, "tts"))
		if p.Available() {
			a.Piper = p
		} else {
			a.log.Warn().Str("binary", cfg.TTS.PiperBinary).Msg("piper not found; speech output disabled")
		}
	}

	pr := deps.Probe
	if pr == nil {
		pr = newProbe(cfg.Hardware, logging.Component(log, "probe"))
	}
	a.Residency = residency.New(residency.Config{
		CeilingGB: cfg.Hardware.GPUMemoryLimitGB,
		HighWater: cfg.Hardware.HighWaterFraction,
		Probe:     pr,
		Loaders:   loaders,
		Reclaim:   func(context.Context) { debug.FreeOSMemory() },
		Logger:    log,
		Now:       now,
	})

	a.Cache = cache.New(cache.Config{
		Enabled:    cfg.Cache.Enabled,
		TTL:        config.Seconds(cfg.Cache.TTLSeconds),
		MaxBytes:   int64(cfg.Cache.MaxSizeMB) << 20,
		FlushEvery: cfg.Cache.FlushEvery,
		Store:      st,
		Logger:     log,
		Now:        now,
	})
	if err := a.Cache.Load(ctx); err != nil {
		a.log.Warn().Err(err).Msg("cache not restored")
	}

	a.Sessions = session.NewManager(session.Config{
		MaxPairs:   cfg.Memory.MaxHistory,
		SaveToDisk: cfg.Memory.SaveToDisk,
		Store:      st,
		Logger:     log,
		Now:        now,
	})

	policy, err := orchestrator.ParseStylePolicy(cfg.Memory.StyleExamples)
	if err != nil {
		return nil, err
	}
	oc := orchestrator.Config{
		Residency:       a.Residency,
		Language:        a.Language,
		Vision:          a.Vision,
		Session:         a.Sessions,
		Cache:           a.Cache,
		CacheScope:      cfg.LLM.Model,
		Cleaner:         postprocess.New(postprocess.Options{}),
		Images:          vision.NewPreparer(0, 0),
		HistoryPairs:    cfg.Memory.MaxHistory,
		StylePolicy:     policy,
		StyleFirstTurns: cfg.Memory.StyleFirstTurns,
		LanguageOptions: samplingOptions(cfg.LLM),
		VisionOptions:   samplingOptions(cfg.VLM),
		Logger:          log,
	}
	if cfg.Context.Enabled {
		oc.Context = provider.NewRouter(provider.Config{
			Providers: map[provider.Intent]provider.Provider{provider.IntentTime: provider.Clock{Now: now}},
			Timeout:   config.Seconds(cfg.Context.TimeoutSec),
			Logger:    logging.Component(log, "context"),
		})
	}
	// Typed nils must not reach the interface fields.
	if a.Whisper != nil {
		oc.Transcriber = a.Whisper
	}
	if a.Piper != nil {
		oc.Synthesizer = a.Piper
	}
	if a.Orchestrator, err = orchestrator.New(oc); err != nil {
		return nil, err
	}

	a.Scheduler = scheduler.New(log)
	if err := a.addJobs(); err != nil {
		return nil, err
	}
	a.log.Info().
		Str("llm", cfg.LLM.Backend+"/"+cfg.LLM.Model).
		Str("vlm", cfg.VLM.Backend+"/"+cfg.VLM.Model).
		Str("storage", cfg.Storage.Driver).
		Bool("stt", a.Whisper != nil).
		Bool("tts", a.Piper != nil).
		Msg("assistant ready")
	return a, nil
}

func newBackend(mc config.ModelConfig, log zerolog.Logger) backend.Backend {
	timeout := config.Seconds(mc.TimeoutSec)
	switch mc.Backend {
	case "openai":
		return backend.NewOpenAI(mc.Host, backend.OpenAIOptions{APIKey: mc.APIKey, RequestTimeout: timeout, Logger: log})
	case "llama":
		return backend.NewLlama(backend.LlamaOptions{ModelsDir: mc.ModelsDir, Logger: log})
	default:
		return backend.NewOllama(mc.Host, backend.OllamaOptions{RequestTimeout: timeout, Logger: log})
	}
}

// sameServer reports whether both model classes can share one backend client.
func sameServer(a, b config.ModelConfig) bool {
	if a.Backend != b.Backend {
		return false
	}
	if a.Backend == "llama" {
		return a.ModelsDir == b.ModelsDir
	}
	return a.Host == b.Host && a.APIKey == b.APIKey && a.TimeoutSec == b.TimeoutSec
}

func newProbe(hw config.HardwareConfig, log zerolog.Logger) probe.Probe {
	if hw.Probe == "none" {
		return probe.Static(0)
	}
	return probe.NewNvidiaSMI(hw.GPUIndex, log)
}

func samplingOptions(mc config.ModelConfig) backend.Options {
	return backend.Options{
		Temperature:   mc.Temperature,
		TopP:          mc.TopP,
		TopK:          mc.TopK,
		RepeatPenalty: mc.RepeatPenalty,
		MaxTokens:     mc.MaxTokens,
	}
}

func (a *App) addJobs() error {
	sc := a.Config.Scheduler
	if !sc.Enabled {
		return nil
	}
	idle := config.Seconds(a.Config.Hardware.ModelUnloadTimeoutSec)
	jobs := []struct {
		name, spec string
		fn         scheduler.Func
	}{
		{"sweep", sc.SweepSpec, func(ctx context.Context) error {
			if idle > 0 {
				a.Residency.SweepIdle(ctx, idle)
			}
			return nil
		}},
		{"expire", sc.ExpireSpec, func(context.Context) error {
			a.Cache.EvictExpired()
			return nil
		}},
		{"flush", sc.FlushSpec, a.Cache.Flush},
		{"autosave", sc.AutosaveSpec, func(ctx context.Context) error {
			_, err := a.Sessions.Save(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if err := a.Scheduler.Add(j.name, j.spec, j.fn); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	return nil
}

// Start begins background maintenance.
func (a *App) Start() {
	if a.Config.Scheduler.Enabled {
		a.Scheduler.Start()
	}
}

// Status aggregates residency, cache and session state.
func (a *App) Status(ctx context.Context) types.StatusResponse {
	now := a.now()
	return types.StatusResponse{
		Residency:      a.Residency.Status(ctx),
		Cache:          a.Cache.Stats(),
		Session:        a.Sessions.Summary(),
		State:          a.Orchestrator.State().String(),
		UptimeSeconds:  int64(now.Sub(a.started) / time.Second),
		ServerTimeUnix: now.Unix(),
	}
}

// Ready reports whether the language backend answers.
func (a *App) Ready(ctx context.Context) error {
	if _, err := a.Language.ListModels(ctx); err != nil {
		return fmt.Errorf("language backend: %w", err)
	}
	return nil
}

// SessionSummary describes the live session.
func (a *App) SessionSummary() types.SessionSummary { return a.Sessions.Summary() }

// ListSessions returns the saved sessions, newest first.
func (a *App) ListSessions(ctx context.Context) ([]types.SessionSummary, error) {
	return a.Sessions.List(ctx)
}

// ClearCache drops every cached response, in memory and on disk.
func (a *App) ClearCache(ctx context.Context) error { return a.Cache.Clear(ctx) }

// Models lists the models the configured backends report, tagging the ones
// configured for a class.
func (a *App) Models(ctx context.Context) ([]types.Model, error) {
	type source struct {
		be  backend.Backend
		mc  config.ModelConfig
		cls residency.Class
	}
	sources := []source{{a.Language, a.Config.LLM, residency.Language}}
	if a.Vision != a.Language {
		sources = append(sources, source{a.Vision, a.Config.VLM, residency.Vision})
	}
	seen := map[string]bool{}
	var out []types.Model
	var errs []error
	for _, s := range sources {
		models, err := listModels(ctx, s.be, s.mc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range models {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			m.Class = a.classOf(m.ID)
			out = append(out, m)
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func listModels(ctx context.Context, be backend.Backend, mc config.ModelConfig) ([]types.Model, error) {
	if mc.Backend == "llama" {
		return backend.ScanGGUF(mc.ModelsDir)
	}
	cat, err := be.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := residency.ExtractModelNames(cat)
	out := make([]types.Model, 0, len(names))
	for _, n := range names {
		out = append(out, types.Model{ID: n, Backend: mc.Backend})
	}
	return out, nil
}

func (a *App) classOf(id string) string {
	if _, ok := residency.ResolveName(a.Config.LLM.Model, []string{id}); ok {
		return string(residency.Language)
	}
	if _, ok := residency.ResolveName(a.Config.VLM.Model, []string{id}); ok {
		return string(residency.Vision)
	}
	return ""
}

// Close stops maintenance, saves the session, unloads every resident model,
// persists the cache and closes the store. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		a.Scheduler.Stop(ctx)
		if _, err := a.Sessions.Save(ctx); err != nil {
			errs = append(errs, err)
		}
		a.Residency.ReleaseAll(ctx)
		if err := a.Cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.closeErr = errors.Join(errs...)
		a.log.Info().Err(a.closeErr).Msg("shutdown complete")
	})
	return a.closeErr
}
