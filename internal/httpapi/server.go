package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"asistan/internal/orchestrator"
	"asistan/internal/session"
	"asistan/internal/speech"
	"asistan/pkg/types"
)

// Conversation is the part of the orchestrator the HTTP layer drives.
type Conversation interface {
	Generate(ctx context.Context, prompt string, ov *orchestrator.Overrides) orchestrator.Result
	AnalyzeImageBase64(ctx context.Context, data, question string) orchestrator.Result
	Transcribe(ctx context.Context, samples []float32, rate int) orchestrator.Result
	History() []session.Turn
	ClearHistory(ctx context.Context) error
	SaveSession(ctx context.Context) (string, error)
	LoadSession(ctx context.Context, id string) error
}

// Service is the process-level surface: status, catalog and maintenance.
type Service interface {
	Status(ctx context.Context) types.StatusResponse
	Models(ctx context.Context) ([]types.Model, error)
	Ready(ctx context.Context) error
	SessionSummary() types.SessionSummary
	ListSessions(ctx context.Context) ([]types.SessionSummary, error)
	ClearCache(ctx context.Context) error
}

type server struct {
	conv Conversation
	svc  Service
	// gate admits one turn at a time; waiting requests give up after turnWait.
	gate chan struct{}
}

// NewMux builds the HTTP API.
func NewMux(conv Conversation, svc Service) http.Handler {
	s := &server{conv: conv, svc: svc, gate: make(chan struct{}, 1)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Log-Level", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	r.Group(func(r chi.Router) {
		r.Use(inflight)
		r.Get("/status", s.status)
		r.Get("/models", s.models)
		r.Post("/chat", s.chat)
		r.Post("/vision", s.vision)
		r.Post("/transcribe", s.transcribe)
		r.Get("/history", s.history)
		r.Delete("/history", s.clearHistory)
		r.Post("/session", s.saveSession)
		r.Get("/sessions", s.listSessions)
		r.Post("/sessions/{id}/load", s.loadSession)
		r.Delete("/cache", s.clearCache)
		r.Get("/ws/chat", s.wsChat)
	})
	return r
}

// acquire waits for the turn gate. It returns false when the wait expired or
// ctx ended first.
func (s *server) acquire(ctx context.Context) bool {
	select {
	case s.gate <- struct{}{}:
		return true
	default:
	}
	if turnWait <= 0 {
		return false
	}
	t := time.NewTimer(turnWait)
	defer t.Stop()
	select {
	case s.gate <- struct{}{}:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *server) release() { <-s.gate }

const busyMessage = "assistant is busy with another request"

func (s *server) busy(w http.ResponseWriter) {
	IncrementBackpressure("turn_busy")
	writeJSONError(w, http.StatusTooManyRequests, busyMessage)
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct != "" && strings.HasPrefix(strings.ToLower(ct), "application/json")
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// readyz godoc
// @Summary      Readiness probe
// @Description  Reports whether the language backend answers.
// @Tags         system
// @Produce      plain
// @Success      200  {string}  string  "ready"
// @Failure      503  {string}  string  "unavailable"
// @Router       /readyz [get]
func (s *server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.svc.Ready(ctx); err != nil {
		requestLogger(r).Debug().Err(err).Msg("not ready")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// status godoc
// @Summary      Assistant status
// @Description  Resident models, accelerator memory, cache and session statistics.
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

// models godoc
// @Summary      List models
// @Description  Models reported by the configured backends.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Failure      502  {object}  types.ErrorResponse
// @Router       /models [get]
func (s *server) models(w http.ResponseWriter, r *http.Request) {
	models, err := s.svc.Models(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	if models == nil {
		models = []types.Model{}
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
}

func overrides(req types.ChatRequest) *orchestrator.Overrides {
	ov := &orchestrator.Overrides{Context: req.Context, SkipContext: req.SkipContext, MaxTokens: req.MaxTokens}
	if req.Temperature > 0 {
		t := req.Temperature
		ov.Temperature = &t
	}
	return ov
}

func chatResponse(res orchestrator.Result) types.ChatResponse {
	return types.ChatResponse{Text: res.Text, Cached: res.Cached, UsedContext: res.UsedContext, Error: errorClass(res.Err)}
}

// chat godoc
// @Summary      Chat turn
// @Description  Answers a prompt. With stream=true the body is NDJSON: one {"token"} line per fragment, then the final response with done=true. Tokens are raw; the final text is post-processed.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Produce      application/x-ndjson
// @Param        request  body      types.ChatRequest  true  "Chat request"
// @Success      200      {object}  types.ChatResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Router       /chat [post]
func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	ctx, cancel := turnContext(r.Context())
	defer cancel()
	if !s.acquire(ctx) {
		s.busy(w)
		return
	}
	defer s.release()

	log := requestLogger(r)
	lvl := requestLogLevel(r)
	start := time.Now()
	if lvl >= LevelInfo {
		log.Info().Bool("stream", req.Stream).Int("prompt_len", len(req.Prompt)).Msg("chat start")
	}
	ov := overrides(req)
	var res orchestrator.Result
	if !req.Stream {
		res = s.conv.Generate(ctx, req.Prompt, ov)
		writeJSON(w, statusFor(res.Err), chatResponse(res))
	} else {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flush := func() {}
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		out := io.Writer(w)
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &lineLogger{log: log})
		}
		enc := json.NewEncoder(out)
		ov.OnToken = func(tok string) error {
			if err := enc.Encode(types.ChatChunk{Token: tok}); err != nil {
				return err
			}
			flush()
			return nil
		}
		res = s.conv.Generate(ctx, req.Prompt, ov)
		final := chatResponse(res)
		final.Done = true
		_ = enc.Encode(final)
		flush()
	}
	if lvl >= LevelError && res.Err != nil {
		log.Warn().Err(res.Err).Str("class", errorClass(res.Err)).Dur("dur", time.Since(start)).Msg("chat end")
	} else if lvl >= LevelInfo {
		log.Info().Bool("cached", res.Cached).Bool("context", res.UsedContext).Dur("dur", time.Since(start)).Msg("chat end")
	}
}

// vision godoc
// @Summary      Describe an image
// @Description  Accepts JSON {image_base64, question} or multipart with an "image" file and a "question" field.
// @Tags         chat
// @Accept       json
// @Accept       mpfd
// @Produce      json
// @Param        request  body      types.VisionRequest  false  "Vision request"
// @Success      200      {object}  types.ChatResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Router       /vision [post]
func (s *server) vision(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.VisionRequest
	switch {
	case isMultipart(r):
		f, _, err := r.FormFile("image")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "image file is required")
			return
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "cannot read image")
			return
		}
		req.ImageBase64 = base64.StdEncoding.EncodeToString(raw)
		req.Question = r.FormValue("question")
	case isJSON(r):
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	default:
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or multipart/form-data")
		return
	}
	if req.ImageBase64 == "" {
		writeJSONError(w, http.StatusBadRequest, "image is required")
		return
	}

	ctx, cancel := turnContext(r.Context())
	defer cancel()
	if !s.acquire(ctx) {
		s.busy(w)
		return
	}
	defer s.release()
	res := s.conv.AnalyzeImageBase64(ctx, req.ImageBase64, req.Question)
	if res.Err != nil {
		requestLogger(r).Warn().Err(res.Err).Str("class", errorClass(res.Err)).Msg("vision failed")
	}
	writeJSON(w, statusFor(res.Err), chatResponse(res))
}

// transcribe godoc
// @Summary      Speech to text
// @Description  Accepts a 16-bit PCM WAV body (audio/wav) or multipart with an "audio" file.
// @Tags         speech
// @Accept       audio/wav
// @Accept       mpfd
// @Produce      json
// @Success      200  {object}  types.TranscribeResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      501  {object}  types.TranscribeResponse
// @Router       /transcribe [post]
func (s *server) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var src io.Reader = r.Body
	if isMultipart(r) {
		f, _, err := r.FormFile("audio")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "audio file is required")
			return
		}
		defer f.Close()
		src = f
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "cannot read audio")
		return
	}
	samples, rate, err := speech.DecodeWAV(raw)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}

	ctx, cancel := turnContext(r.Context())
	defer cancel()
	if !s.acquire(ctx) {
		s.busy(w)
		return
	}
	defer s.release()
	res := s.conv.Transcribe(ctx, samples, rate)
	writeJSON(w, statusFor(res.Err), types.TranscribeResponse{Text: res.Text, Error: errorClass(res.Err)})
}

// history godoc
// @Summary      Conversation history
// @Tags         session
// @Produce      json
// @Success      200  {object}  types.HistoryResponse
// @Router       /history [get]
func (s *server) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HistoryResponse{
		Turns:   session.ToTypes(s.conv.History()),
		Session: s.svc.SessionSummary(),
	})
}

// clearHistory godoc
// @Summary      Clear history
// @Description  Saves the current session (when persistence is on) and starts a new one.
// @Tags         session
// @Success      204
// @Router       /history [delete]
func (s *server) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.ClearHistory(r.Context()); err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveSession godoc
// @Summary      Save the current session
// @Tags         session
// @Produce      json
// @Success      200  {object}  types.SessionSaveResponse
// @Router       /session [post]
func (s *server) saveSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.conv.SaveSession(r.Context())
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.SessionSaveResponse{ID: id})
}

// listSessions godoc
// @Summary      Saved sessions
// @Tags         session
// @Produce      json
// @Success      200  {array}  types.SessionSummary
// @Router       /sessions [get]
func (s *server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListSessions(r.Context())
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	if list == nil {
		list = []types.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// loadSession godoc
// @Summary      Resume a saved session
// @Tags         session
// @Param        id   path  string  true  "Session id"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /sessions/{id}/load [post]
func (s *server) loadSession(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.LoadSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearCache godoc
// @Summary      Clear the response cache
// @Tags         system
// @Success      204
// @Router       /cache [delete]
func (s *server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearCache(r.Context()); err != nil {
		// The in-memory cache is already empty; only persistence failed.
		requestLogger(r).Warn().Err(err).Msg("cache clear not persisted")
	}
	w.WriteHeader(http.StatusNoContent)
}
