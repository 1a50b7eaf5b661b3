// Package config defines the runtime configuration of the assistant core.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime parameters for every component.
type Config struct {
	Hardware  HardwareConfig  `json:"hardware" yaml:"hardware" toml:"hardware"`
	LLM       ModelConfig     `json:"llm" yaml:"llm" toml:"llm"`
	VLM       ModelConfig     `json:"vlm" yaml:"vlm" toml:"vlm"`
	STT       STTConfig       `json:"stt" yaml:"stt" toml:"stt"`
	TTS       TTSConfig       `json:"tts" yaml:"tts" toml:"tts"`
	Cache     CacheConfig     `json:"cache" yaml:"cache" toml:"cache"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory" toml:"memory"`
	Context   ContextConfig   `json:"context" yaml:"context" toml:"context"`
	Storage   StorageConfig   `json:"storage" yaml:"storage" toml:"storage"`
	Server    ServerConfig    `json:"server" yaml:"server" toml:"server"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler" toml:"scheduler"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" toml:"logging"`
}

type HardwareConfig struct {
	GPUMemoryLimitGB      float64 `json:"gpu_memory_limit_gb" yaml:"gpu_memory_limit_gb" toml:"gpu_memory_limit_gb"`
	HighWaterFraction     float64 `json:"high_water_fraction" yaml:"high_water_fraction" toml:"high_water_fraction"`
	ModelUnloadTimeoutSec int     `json:"model_unload_timeout" yaml:"model_unload_timeout" toml:"model_unload_timeout"`
	GPUIndex              int     `json:"gpu_index" yaml:"gpu_index" toml:"gpu_index"`
	// Probe selects the usage source: "nvidia-smi" or "none".
	Probe string `json:"probe" yaml:"probe" toml:"probe"`
}

// ModelConfig describes one model class backed by an inference server.
type ModelConfig struct {
	Backend       string  `json:"backend" yaml:"backend" toml:"backend"` // ollama|openai|llama
	Host          string  `json:"host" yaml:"host" toml:"host"`
	APIKey        string  `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model         string  `json:"model" yaml:"model" toml:"model"`
	FallbackModel string  `json:"fallback_model" yaml:"fallback_model" toml:"fallback_model"`
	ModelsDir     string  `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Temperature   float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP          float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	MaxTokens     int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	TimeoutSec    int     `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type STTConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	ServerURL  string `json:"server_url" yaml:"server_url" toml:"server_url"`
	Language   string `json:"language" yaml:"language" toml:"language"`
	TimeoutSec int    `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type TTSConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	PiperBinary string `json:"piper_binary" yaml:"piper_binary" toml:"piper_binary"`
	Voice       string `json:"voice" yaml:"voice" toml:"voice"`
	SampleRate  int    `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate"`
}

type CacheConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	TTLSeconds int  `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	FlushEvery int  `json:"flush_every" yaml:"flush_every" toml:"flush_every"`
}

type MemoryConfig struct {
	// MaxHistory is the number of user/assistant pairs kept in the window.
	MaxHistory      int    `json:"max_history" yaml:"max_history" toml:"max_history"`
	StyleExamples   string `json:"style_examples" yaml:"style_examples" toml:"style_examples"` // always|first_turns|never
	StyleFirstTurns int    `json:"style_first_turns" yaml:"style_first_turns" toml:"style_first_turns"`
	SaveToDisk      bool   `json:"save_to_disk" yaml:"save_to_disk" toml:"save_to_disk"`
}

type ContextConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	TimeoutSec int  `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type StorageConfig struct {
	Driver         string `json:"driver" yaml:"driver" toml:"driver"` // file|sqlite|valkey|memory
	Path           string `json:"path" yaml:"path" toml:"path"`
	ValkeyAddr     string `json:"valkey_addr" yaml:"valkey_addr" toml:"valkey_addr"`
	ValkeyPassword string `json:"valkey_password" yaml:"valkey_password" toml:"valkey_password"`
	ValkeyDB       int    `json:"valkey_db" yaml:"valkey_db" toml:"valkey_db"`
	KeyPrefix      string `json:"key_prefix" yaml:"key_prefix" toml:"key_prefix"`
}

type ServerConfig struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// SchedulerConfig holds cron specs for background maintenance. An empty spec
// disables that job.
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	SweepSpec    string `json:"sweep" yaml:"sweep" toml:"sweep"`
	ExpireSpec   string `json:"expire" yaml:"expire" toml:"expire"`
	FlushSpec    string `json:"flush" yaml:"flush" toml:"flush"`
	AutosaveSpec string `json:"autosave" yaml:"autosave" toml:"autosave"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Hardware: HardwareConfig{
			GPUMemoryLimitGB:      7.0,
			HighWaterFraction:     0.7,
			ModelUnloadTimeoutSec: 300,
			Probe:                 "nvidia-smi",
		},
		LLM: ModelConfig{
			Backend:       "ollama",
			Host:          "http://localhost:11434",
			Model:         "turkce-asistan",
			FallbackModel: "qwen2.5:7b",
			Temperature:   0.7,
			TopP:          0.9,
			TopK:          40,
			RepeatPenalty: 1.1,
			MaxTokens:     512,
			TimeoutSec:    120,
		},
		VLM: ModelConfig{
			Backend:     "ollama",
			Host:        "http://localhost:11434",
			Model:       "llava:7b",
			Temperature: 0.2,
			TopP:        0.9,
			MaxTokens:   400,
			TimeoutSec:  180,
		},
		STT: STTConfig{
			ServerURL:  "http://localhost:8080",
			Language:   "tr",
			TimeoutSec: 60,
		},
		TTS: TTSConfig{
			PiperBinary: "piper",
			Voice:       "tr_TR-dfki-medium.onnx",
			SampleRate:  22050,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 3600,
			MaxSizeMB:  500,
			FlushEvery: 10,
		},
		Memory: MemoryConfig{
			MaxHistory:      10,
			StyleExamples:   "first_turns",
			StyleFirstTurns: 3,
			SaveToDisk:      true,
		},
		Context: ContextConfig{
			Enabled:    true,
			TimeoutSec: 5,
		},
		Storage: StorageConfig{
			Driver:     "file",
			Path:       "~/.asistan/data",
			ValkeyAddr: "127.0.0.1:6379",
			KeyPrefix:  "asistan",
		},
		Server: ServerConfig{
			Addr:         ":8765",
			MaxBodyBytes: 16 << 20,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			SweepSpec:    "@every 1m",
			ExpireSpec:   "@every 10m",
			FlushSpec:    "@every 5m",
			AutosaveSpec: "@every 2m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Hardware.GPUMemoryLimitGB <= 0 {
		return fmt.Errorf("hardware.gpu_memory_limit_gb must be > 0")
	}
	if c.Hardware.HighWaterFraction <= 0 || c.Hardware.HighWaterFraction > 1 {
		return fmt.Errorf("hardware.high_water_fraction must be in (0,1]")
	}
	switch c.Memory.StyleExamples {
	case "always", "first_turns", "never":
	default:
		return fmt.Errorf("memory.style_examples: unknown policy %q", c.Memory.StyleExamples)
	}
	if c.Memory.MaxHistory < 0 {
		return fmt.Errorf("memory.max_history must be >= 0")
	}
	switch c.Storage.Driver {
	case "file", "sqlite", "valkey", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	for name, mc := range map[string]ModelConfig{"llm": c.LLM, "vlm": c.VLM} {
		switch mc.Backend {
		case "ollama", "openai", "llama":
		default:
			return fmt.Errorf("%s.backend: unknown backend %q", name, mc.Backend)
		}
		if mc.Model == "" {
			return fmt.Errorf("%s.model is required", name)
		}
	}
	return nil
}

// Seconds converts a seconds setting to a duration; non-positive means zero.
func Seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
