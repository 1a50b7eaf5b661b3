package types

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// Required user prompt.
	// example: Bugün hava nasıl?
	Prompt string `json:"prompt" example:"Bugün hava nasıl?"`
	// If true, stream results as NDJSON tokens.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Optional external context; when set, no provider lookup is made.
	Context string `json:"context,omitempty"`
	// Skip external context lookup entirely.
	SkipContext bool `json:"skip_context,omitempty"`
	// Sampling overrides. Zero means the configured default.
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	MaxTokens   int     `json:"max_tokens,omitempty" example:"256"`
}

// ChatResponse is returned by POST /chat when not streaming, and as the final
// NDJSON line when streaming.
type ChatResponse struct {
	Text        string `json:"text"`
	Cached      bool   `json:"cached"`
	UsedContext bool   `json:"used_context"`
	// Failure class when the text is a fallback (model_load, backend_call, empty_response).
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// ChatChunk is one streamed fragment.
type ChatChunk struct {
	Token string `json:"token"`
}

// VisionRequest is the JSON body of POST /vision. Multipart uploads use the
// "image" file field and a "question" form field instead.
type VisionRequest struct {
	// Base64-encoded image bytes.
	ImageBase64 string `json:"image_base64"`
	// example: Bu resimde ne var?
	Question string `json:"question,omitempty" example:"Bu resimde ne var?"`
}

// TranscribeResponse is returned by POST /transcribe.
type TranscribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Turns   []Turn         `json:"turns"`
	Session SessionSummary `json:"session"`
}

// SessionSaveResponse is returned by POST /session.
type SessionSaveResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Residency ResidencyStatus `json:"residency"`
	Cache     CacheStatus     `json:"cache"`
	Session   SessionSummary  `json:"session"`
	// Orchestrator state (idle, awaiting_model, generating, post_processing).
	// example: idle
	State string `json:"state" example:"idle"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
