package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/config"
	"github.com/ravi-parthasarathy/agenttrace/pkg/render"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"

	// Register all LLM providers via their init() functions.
	_ "github.com/ravi-parthasarathy/agenttrace/pkg/llm/providers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the global flags and the configuration they produce.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	width      int
	cfg        config.Config
}

// terminalOptions turns the global display flags into terminal options.
func (o *rootOptions) terminalOptions() []render.TerminalOption {
	if o.width <= 0 {
		return nil
	}
	return []render.TerminalOption{render.WithWidth(o.width)}
}

func rootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "agenttrace",
		Short: "agenttrace: chat with a managed agent and inspect its reasoning trace",
		Long: `agenttrace invokes a managed agent with tracing enabled and turns the
streamed response into readable steps: rationale, code runs, knowledge-base
lookups, action-group calls and their observations, plus the final answer
and any images the agent produced.

Recorded streams can be replayed offline, and the action-group functions the
agent calls can be run locally.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return o.load()
		},
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "log format: text or json (overrides config)")
	root.PersistentFlags().IntVar(&o.width, "width", 0, "panel width for text output (default 80)")

	root.AddCommand(chatCmd(o))
	root.AddCommand(replayCmd(o))
	root.AddCommand(graphCmd(o))
	root.AddCommand(askCmd(o))
	root.AddCommand(actionCmd(o))
	root.AddCommand(diagramCmd(o))
	root.AddCommand(sessionsCmd(o))
	return root
}

// load reads the config file and environment, applies flag overrides and
// installs the logger.
func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = strings.ToLower(o.logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := initLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// initLogger installs the default slog logger writing to stderr.
func initLogger(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("unknown log level %q: use debug, info, warn or error", level)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, hopts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, hopts)
	default:
		return fmt.Errorf("unknown log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// interpreterOptions maps config onto interpreter options. Images and
// files go to the configured local directories.
func interpreterOptions(cfg config.Config, fullText bool) []trace.Option {
	opts := []trace.Option{
		trace.WithImageStore(localStore(cfg.Storage.ImageDir)),
		trace.WithFileStore(localStore(cfg.Storage.FileDir)),
		trace.WithRepeatThreshold(cfg.Interpreter.RepeatThreshold),
	}
	if fullText || cfg.Interpreter.FullText {
		opts = append(opts, trace.WithFullText())
	}
	return opts
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[agenttrace] interrupted, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
