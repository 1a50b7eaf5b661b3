package types

// Model is an entry of a backend catalog as exposed by GET /models.
type Model struct {
	// Identifier as reported by the backend.
	// example: turkce-asistan:latest
	ID string `json:"id" example:"turkce-asistan:latest"`
	// Model class this entry is configured for, if any (language, vision, speech).
	// example: language
	Class string `json:"class,omitempty" example:"language"`
	// Backend that reported the model (ollama, openai, llama).
	// example: ollama
	Backend string `json:"backend" example:"ollama"`
	// Absolute path to the model file on disk (in-process backend only).
	// example: /home/user/models/qwen2.5-7b.Q4_K_M.gguf
	Path string `json:"path,omitempty"`
	// Quantization variant parsed from the file name, when known.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty"`
}

// Turn is one entry of the conversation history.
type Turn struct {
	// user or assistant
	// example: user
	Role string `json:"role" example:"user"`
	// example: Bugün hava nasıl?
	Text string `json:"text" example:"Bugün hava nasıl?"`
	// Unix seconds.
	// example: 1700000000
	Timestamp int64 `json:"timestamp" example:"1700000000"`
}

// ProbeInfo reports accelerator memory as seen by the resource probe.
type ProbeInfo struct {
	Available bool    `json:"available"`
	UsedGB    float64 `json:"used_gb"`
	TotalGB   float64 `json:"total_gb"`
	FreeGB    float64 `json:"free_gb"`
	Percent   float64 `json:"percent"`
}

// SlotStatus describes one resident model class.
type SlotStatus struct {
	// example: language
	Class string `json:"class" example:"language"`
	// example: turkce-asistan:latest
	ModelID string `json:"model_id" example:"turkce-asistan:latest"`
	// Last access, unix seconds.
	LastUsed int64 `json:"last_used_unix"`
	// Memory delta observed when the model was loaded.
	// example: 4.2
	FootprintGB float64 `json:"footprint_gb" example:"4.2"`
}

// ResidencyStatus summarizes the residency manager.
type ResidencyStatus struct {
	Slots          []SlotStatus `json:"slots"`
	CeilingGB      float64      `json:"ceiling_gb"`
	HighWater      float64      `json:"high_water_fraction"`
	Probe          ProbeInfo    `json:"probe"`
	LoadsTotal     uint64       `json:"loads_total"`
	EvictionsTotal uint64       `json:"evictions_total"`
	LastError      string       `json:"last_error,omitempty"`
}

// CacheStatus summarizes the response cache.
type CacheStatus struct {
	Enabled   bool   `json:"enabled"`
	Entries   int    `json:"entries"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	SizeBytes int64  `json:"size_bytes"`
	SizeHuman string `json:"size_human"`
}

// SessionSummary describes the current conversation session.
type SessionSummary struct {
	ID                string `json:"id"`
	StartedAt         int64  `json:"started_at_unix"`
	EndedAt           int64  `json:"ended_at_unix,omitempty"`
	TotalMessages     int    `json:"total_messages"`
	UserMessages      int    `json:"user_messages"`
	AssistantMessages int    `json:"assistant_messages"`
}
