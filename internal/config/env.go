package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overlays ASISTAN_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

type envVar struct {
	name string
	set  func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error { *dst(c) = v; return nil }
}

func flt(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envVars = []envVar{
	{"ASISTAN_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"ASISTAN_LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"ASISTAN_LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
	{"ASISTAN_GPU_MEMORY_LIMIT_GB", flt(func(c *Config) *float64 { return &c.Hardware.GPUMemoryLimitGB })},
	{"ASISTAN_HIGH_WATER_FRACTION", flt(func(c *Config) *float64 { return &c.Hardware.HighWaterFraction })},
	{"ASISTAN_GPU_INDEX", integer(func(c *Config) *int { return &c.Hardware.GPUIndex })},
	{"ASISTAN_PROBE", str(func(c *Config) *string { return &c.Hardware.Probe })},
	{"ASISTAN_LLM_BACKEND", str(func(c *Config) *string { return &c.LLM.Backend })},
	{"ASISTAN_LLM_HOST", str(func(c *Config) *string { return &c.LLM.Host })},
	{"ASISTAN_LLM_MODEL", str(func(c *Config) *string { return &c.LLM.Model })},
	{"ASISTAN_LLM_API_KEY", str(func(c *Config) *string { return &c.LLM.APIKey })},
	{"ASISTAN_VLM_BACKEND", str(func(c *Config) *string { return &c.VLM.Backend })},
	{"ASISTAN_VLM_HOST", str(func(c *Config) *string { return &c.VLM.Host })},
	{"ASISTAN_VLM_MODEL", str(func(c *Config) *string { return &c.VLM.Model })},
	{"ASISTAN_VLM_API_KEY", str(func(c *Config) *string { return &c.VLM.APIKey })},
	{"ASISTAN_STT_URL", str(func(c *Config) *string { return &c.STT.ServerURL })},
	{"ASISTAN_STT_ENABLED", boolean(func(c *Config) *bool { return &c.STT.Enabled })},
	{"ASISTAN_TTS_ENABLED", boolean(func(c *Config) *bool { return &c.TTS.Enabled })},
	{"ASISTAN_CACHE_ENABLED", boolean(func(c *Config) *bool { return &c.Cache.Enabled })},
	{"ASISTAN_CACHE_TTL_SECONDS", integer(func(c *Config) *int { return &c.Cache.TTLSeconds })},
	{"ASISTAN_STORAGE_DRIVER", str(func(c *Config) *string { return &c.Storage.Driver })},
	{"ASISTAN_STORAGE_PATH", str(func(c *Config) *string { return &c.Storage.Path })},
	{"ASISTAN_VALKEY_ADDR", str(func(c *Config) *string { return &c.Storage.ValkeyAddr })},
	{"ASISTAN_VALKEY_PASSWORD", str(func(c *Config) *string { return &c.Storage.ValkeyPassword })},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", ev.name, err)
		}
	}
	return nil
}
