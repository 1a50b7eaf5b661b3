package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"asistan/internal/app"
	"asistan/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		Example: `  asistan serve
  asistan serve --addr 127.0.0.1:9000 --config asistan.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			log := opts.logger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Deps{Logger: log})
			if err != nil {
				return err
			}
			a.Start()

			httpapi.SetLogger(log)
			httpapi.SetMaxBodyBytes(cfg.Server.MaxBodyBytes)
			httpapi.SetCORSOptions(cfg.Server.CORSEnabled, cfg.Server.CORSOrigins)
			httpapi.SetBaseContext(ctx)

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           httpapi.NewMux(a.Orchestrator, a),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Server.Addr).Str("storage", cfg.Storage.Driver).Str("llm", cfg.LLM.Model).Msg("asistan listening")
				errc <- srv.ListenAndServe()
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					serveErr = err
				}
			}

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("graceful shutdown error")
			}
			return errors.Join(serveErr, a.Close(sctx))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
