package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asistan/internal/app"
	"asistan/internal/config"
	"asistan/internal/httpapi"
)

// fakeOllama emulates the parts of the Ollama API the backend client uses.
type fakeOllama struct {
	mu      sync.Mutex
	reply   string
	chats   int
	loads   []string
	unloads []string
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"turkce-asistan:latest"},{"name":"llava:7b"},{"name":"qwen2.5:7b"}]}`)
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model     string `json:"model"`
			KeepAlive any    `json:"keep_alive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("generate body: %v", err)
		}
		f.mu.Lock()
		if n, ok := req.KeepAlive.(float64); ok && n == 0 {
			f.unloads = append(f.unloads, req.Model)
		} else {
			f.loads = append(f.loads, req.Model)
		}
		f.mu.Unlock()
		fmt.Fprint(w, `{"done":true}`)
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.chats++
		reply := f.reply
		f.mu.Unlock()
		if !req.Stream {
			_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": reply}, "done": true})
			return
		}
		for _, part := range splitWords(reply) {
			_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": part}, "done": false})
		}
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	})
	return mux
}

func (f *fakeOllama) Chats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats
}

func (f *fakeOllama) Unloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unloads...)
}

func splitWords(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == ' ' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

type stack struct {
	app *app.App
	api *httptest.Server
}

// newStack wires a full assistant against a fake Ollama server and serves its
// HTTP API.
func newStack(t *testing.T, ollamaURL string, mutate func(*config.Config)) *stack {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Host = ollamaURL
	cfg.VLM.Host = ollamaURL
	cfg.Hardware.Probe = "none"
	cfg.Storage.Path = t.TempDir()
	cfg.STT.Enabled = false
	cfg.TTS.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := app.New(context.Background(), cfg, app.Deps{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	api := httptest.NewServer(httpapi.NewMux(a.Orchestrator, a))
	t.Cleanup(func() {
		api.Close()
		_ = a.Close(context.Background())
	})
	return &stack{app: a, api: api}
}

func startOllama(t *testing.T, reply string) (*fakeOllama, *httptest.Server) {
	t.Helper()
	f := &fakeOllama{reply: reply}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return f, srv
}

func (s *stack) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, s.api.URL+path, rd)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}
