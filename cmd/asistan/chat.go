package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"asistan/internal/app"
	"asistan/internal/common/fsutil"
	"asistan/internal/orchestrator"
	"asistan/internal/speech"
)

const replHelp = `commands:
  /image <path> [question]  describe an image
  /say <text>               synthesize speech into the --wav-out file
  /history                  show the conversation window
  /clear                    forget the conversation
  /save                     save the session
  /load <id>                resume a saved session
  /cache on|off|clear       toggle or clear the response cache
  /status                   residency, cache and session state
  /quit                     exit`

func newChatCmd(opts *options) *cobra.Command {
	var historyFile, wavOut string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant in the terminal",
		Long: `Runs the assistant in-process. With a message argument it answers once
and exits; without one it starts an interactive session.`,
		Example: `  asistan chat "Bugün hava nasıl?"
  asistan chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Deps{Logger: opts.logger(cfg)})
			if err != nil {
				return err
			}
			a.Start()
			r := &repl{app: a, out: cmd.OutOrStdout(), wavOut: wavOut, now: time.Now}

			if len(args) == 1 {
				r.handle(ctx, args[0])
			} else {
				err = runREPL(ctx, r, historyFile)
			}
			cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(err, a.Close(cctx))
		},
	}
	cmd.Flags().StringVar(&historyFile, "history-file", "~/.asistan/repl_history", "readline history file (empty disables)")
	cmd.Flags().StringVar(&wavOut, "wav-out", "asistan.wav", "file /say writes to")
	return cmd
}

func runREPL(ctx context.Context, r *repl, historyFile string) error {
	if historyFile != "" {
		p, err := fsutil.ExpandHome(historyFile)
		if err != nil {
			return err
		}
		historyFile = p
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "sen> ",
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "/quit",
		HistorySearchFold: true,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/image"),
			readline.PcItem("/say"),
			readline.PcItem("/history"),
			readline.PcItem("/clear"),
			readline.PcItem("/save"),
			readline.PcItem("/load"),
			readline.PcItem("/cache", readline.PcItem("on"), readline.PcItem("off"), readline.PcItem("clear")),
			readline.PcItem("/status"),
			readline.PcItem("/help"),
			readline.PcItem("/quit"),
		),
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	r.out = rl.Stdout()
	fmt.Fprintln(r.out, "asistan hazır. /help for commands.")

	for ctx.Err() == nil {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		if r.handle(ctx, line) {
			return nil
		}
	}
	return nil
}

// repl executes one input line at a time against an in-process assistant.
type repl struct {
	app    *app.App
	out    io.Writer
	wavOut string
	now    func() time.Time
}

// handle runs a command or a chat turn and reports whether to exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.chat(ctx, line)
		return false
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	o := r.app.Orchestrator
	switch name {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/clear":
		r.report(o.ClearHistory(ctx), "conversation cleared")
	case "/save":
		id, err := o.SaveSession(ctx)
		r.report(err, "saved session "+id)
	case "/load":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /load <id>")
			break
		}
		r.report(o.LoadSession(ctx, arg), "loaded session "+arg)
	case "/history":
		fmt.Fprintln(r.out, o.HistorySummary())
		for _, t := range o.History() {
			fmt.Fprintf(r.out, "  %s: %s\n", t.Role, t.Text)
		}
	case "/image":
		path, question, _ := strings.Cut(arg, " ")
		if path == "" {
			fmt.Fprintln(r.out, "usage: /image <path> [question]")
			break
		}
		r.printResult(o.AnalyzeImage(ctx, path, strings.TrimSpace(question)))
	case "/say":
		r.say(ctx, arg)
	case "/cache":
		r.cache(ctx, arg)
	case "/status":
		printStatus(r.out, r.app.Status(ctx), r.now())
	default:
		fmt.Fprintf(r.out, "unknown command %s, try /help\n", name)
	}
	return false
}

func (r *repl) chat(ctx context.Context, prompt string) {
	var streamed strings.Builder
	ov := &orchestrator.Overrides{OnToken: func(tok string) error {
		streamed.WriteString(tok)
		_, err := io.WriteString(r.out, tok)
		return err
	}}
	res := r.app.Orchestrator.Generate(ctx, prompt, ov)
	if streamed.Len() == 0 {
		r.printResult(res)
		return
	}
	fmt.Fprintln(r.out)
	if strings.TrimSpace(streamed.String()) != res.Text {
		// The post-processed answer differs from the raw stream.
		fmt.Fprintf(r.out, "→ %s\n", res.Text)
	}
	if res.Err != nil {
		fmt.Fprintf(r.out, "! %v\n", res.Err)
	}
}

func (r *repl) printResult(res orchestrator.Result) {
	fmt.Fprintln(r.out, res.Text)
	if res.Err != nil {
		fmt.Fprintf(r.out, "! %v\n", res.Err)
	}
}

func (r *repl) say(ctx context.Context, text string) {
	if text == "" {
		fmt.Fprintln(r.out, "usage: /say <text>")
		return
	}
	ch, err := r.app.Orchestrator.Speak(ctx, text)
	if err != nil {
		r.report(err, "")
		return
	}
	samples, rate, err := speech.Collect(ch)
	if err == nil {
		err = fsutil.WriteFileAtomic(r.wavOut, speech.EncodeWAV(samples, rate), 0o644)
	}
	r.report(err, fmt.Sprintf("wrote %s (%.1fs)", r.wavOut, float64(len(samples))/float64(max(rate, 1))))
}

func (r *repl) cache(ctx context.Context, arg string) {
	c := r.app.Cache
	switch arg {
	case "on":
		c.SetEnabled(true)
	case "off":
		c.SetEnabled(false)
	case "clear":
		if err := c.Clear(ctx); err != nil {
			r.report(err, "")
			return
		}
	case "", "stats":
	default:
		fmt.Fprintln(r.out, "usage: /cache on|off|clear")
		return
	}
	printCache(r.out, c.Stats())
}

func (r *repl) report(err error, ok string) {
	if err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return
	}
	fmt.Fprintln(r.out, ok)
}
