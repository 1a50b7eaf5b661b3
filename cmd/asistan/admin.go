package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"asistan/pkg/types"
)

const clientTimeout = 10 * time.Second

// apiClient talks to a running `asistan serve`.
type apiClient struct {
	base string
	hc   *http.Client
}

func (o *options) client() (*apiClient, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return &apiClient{base: o.serverURL(cfg), hc: &http.Client{Timeout: clientTimeout}}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e types.ErrorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) status(ctx context.Context) (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", &st)
	return st, err
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show residency, cache and session state of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(cmd.OutOrStdout(), st, time.Unix(st.ServerTimeUnix, 0))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status document")
	return cmd
}

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("cache requires a subcommand: stats|clear")
		},
	}
	cmd.AddCommand(
		&cobra.Command{Use: "stats", Short: "Show cache statistics", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.status(cmd.Context())
			if err != nil {
				return err
			}
			printCache(cmd.OutOrStdout(), st.Cache)
			return nil
		}},
		&cobra.Command{Use: "clear", Short: "Drop every cached response", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodDelete, "/cache", nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		}},
	)
	return cmd
}

func newSessionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect saved sessions",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("sessions requires a subcommand: show")
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "show [id]",
		Short:   "List saved sessions, or one session by id",
		Example: "  asistan sessions show\n  asistan sessions show 3f6c2a1e-...",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var list []types.SessionSummary
			if err := c.do(cmd.Context(), http.MethodGet, "/sessions", &list); err != nil {
				return err
			}
			if len(args) == 1 {
				var match []types.SessionSummary
				for _, s := range list {
					if s.ID == args[0] {
						match = append(match, s)
					}
				}
				if len(match) == 0 {
					return fmt.Errorf("session %s not found", args[0])
				}
				list = match
			}
			printSessions(cmd.OutOrStdout(), list, time.Now())
			return nil
		},
	})
	return cmd
}
