package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"asistan/internal/orchestrator"
	"asistan/internal/session"
	"asistan/pkg/types"
)

type fakeConv struct {
	mu       sync.Mutex
	reply    orchestrator.Result
	tokens   []string
	block    chan struct{}
	started  chan struct{}
	prompts  []string
	ovs      []orchestrator.Overrides
	images   []string
	question string
	samples  int
	rate     int
	history  []session.Turn
	cleared  int
	saveID   string
	loaded   string
	loadErr  error
}

func newFakeConv() *fakeConv {
	return &fakeConv{reply: orchestrator.Result{Text: "Merhaba!"}, saveID: "s-1"}
}

func (f *fakeConv) Generate(ctx context.Context, prompt string, ov *orchestrator.Overrides) orchestrator.Result {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	if ov != nil {
		f.ovs = append(f.ovs, *ov)
	}
	block, started := f.block, f.started
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return orchestrator.Result{Text: orchestrator.FallbackGeneric, Err: &orchestrator.BackendCallError{Op: "generate", Err: ctx.Err()}}
		}
	}
	if ov != nil && ov.OnToken != nil {
		for _, tok := range f.tokens {
			if err := ov.OnToken(tok); err != nil {
				break
			}
		}
	}
	return f.reply
}

func (f *fakeConv) AnalyzeImageBase64(_ context.Context, data, question string) orchestrator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, data)
	f.question = question
	return f.reply
}

func (f *fakeConv) Transcribe(_ context.Context, samples []float32, rate int) orchestrator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples, f.rate = len(samples), rate
	return f.reply
}

func (f *fakeConv) History() []session.Turn { return f.history }

func (f *fakeConv) ClearHistory(context.Context) error {
	f.cleared++
	f.history = nil
	return nil
}

func (f *fakeConv) SaveSession(context.Context) (string, error) { return f.saveID, nil }

func (f *fakeConv) LoadSession(_ context.Context, id string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = id
	return nil
}

func (f *fakeConv) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeService struct {
	status     types.StatusResponse
	models     []types.Model
	modelsErr  error
	readyErr   error
	sessions   []types.SessionSummary
	cacheClear int
}

func (s *fakeService) Status(context.Context) types.StatusResponse { return s.status }

func (s *fakeService) Models(context.Context) ([]types.Model, error) { return s.models, s.modelsErr }

func (s *fakeService) Ready(context.Context) error { return s.readyErr }

func (s *fakeService) SessionSummary() types.SessionSummary {
	return types.SessionSummary{ID: "s-1", TotalMessages: 2}
}

func (s *fakeService) ListSessions(context.Context) ([]types.SessionSummary, error) {
	return s.sessions, nil
}

func (s *fakeService) ClearCache(context.Context) error {
	s.cacheClear++
	return nil
}

var errBoom = errors.New("boom")

var testTime = time.Unix(1_760_000_000, 0)
