package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"asistan/internal/config"
	"asistan/internal/logging"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	envFiles   []string
	logLevel   string
	server     string

	// stderr receives logs; tests swap it out.
	stderr io.Writer
}

func newRootCmd(version string) *cobra.Command {
	opts := &options{stderr: os.Stderr}
	root := &cobra.Command{
		Use:   "asistan",
		Short: "Local Turkish voice and text assistant",
		Long: `asistan runs a local assistant on top of Ollama, an OpenAI-compatible
server or llama.cpp, keeping at most one GPU model of each class resident.

Examples:
  asistan serve --config asistan.yaml
  asistan chat
  asistan chat "Bugün hava nasıl?"
  asistan cache stats`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", os.Getenv("ASISTAN_CONFIG"), "config file (.yaml, .json or .toml)")
	pf.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env, .env.local)")
	pf.StringVar(&opts.logLevel, "log-level", "", "override logging.level: trace|debug|info|warn|error|off")
	pf.StringVar(&opts.server, "server", "", "base URL of a running server (default derived from server.addr)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newStatusCmd(opts),
		newCacheCmd(opts),
		newSessionsCmd(opts),
	)
	return root
}

// loadConfig layers dotenv files, the config file and ASISTAN_* variables
// over the defaults, in that order, then applies flag overrides.
func (o *options) loadConfig() (config.Config, error) {
	if err := config.LoadEnvFiles(o.envFiles...); err != nil {
		return config.Config{}, err
	}
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

func (o *options) logger(cfg config.Config) zerolog.Logger {
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writer: o.stderr})
}

// serverURL resolves the base URL admin commands talk to.
func (o *options) serverURL(cfg config.Config) string {
	if o.server != "" {
		return strings.TrimRight(o.server, "/")
	}
	addr := cfg.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return fmt.Sprintf("http://%s", addr)
}
