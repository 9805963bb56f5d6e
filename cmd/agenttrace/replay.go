package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/render"
	"github.com/ravi-parthasarathy/agenttrace/pkg/stream"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

func replayCmd(o *rootOptions) *cobra.Command {
	var (
		format   string
		fullText bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl|events.sse|->",
		Short: "Interpret a recorded agent response stream",
		Long: `Replay reads a recorded response stream and prints the interpreted trace.

Files ending in .sse are read as text/event-stream bodies; anything else is
read as one JSON event per line. Use - for stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext(cmd.Context())
			return runReplay(ctx, cmd.OutOrStdout(), cmd.InOrStdin(), args[0], replayOutput{
				format:   format,
				path:     output,
				terminal: o.terminalOptions(),
			}, interpreterOptions(o.cfg, fullText)...)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or dot")
	cmd.Flags().BoolVar(&fullText, "full-text", false, "read every text chunk instead of stopping at the first")
	cmd.Flags().StringVar(&output, "output", "", "also write the result as JSON to this path")
	return cmd
}

// replayOutput says how a replayed result is shown and saved.
type replayOutput struct {
	format   string
	path     string
	terminal []render.TerminalOption
}

// runReplay interprets the stream at path and prints the result. When the
// stream fails part way, the partial result is still written and printed
// before the read error is returned.
func runReplay(ctx context.Context, w io.Writer, stdin io.Reader, path string, out replayOutput, opts ...trace.Option) error {
	src, closeSrc, err := openSource(path, stdin)
	if err != nil {
		return err
	}
	defer closeSrc()
	res, ierr := interpretSource(ctx, path, src, opts...)
	if err := writeResult(out.path, res); err != nil {
		return errors.Join(ierr, err)
	}
	if err := printResult(w, out.format, res, out.terminal...); err != nil {
		return errors.Join(ierr, err)
	}
	return ierr
}

// openSource opens path as a response stream. The close function is never
// nil.
func openSource(path string, stdin io.Reader) (trace.Source, func() error, error) {
	var (
		r       io.Reader = stdin
		closeFn           = func() error { return nil }
	)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open events: %w", err)
		}
		r, closeFn = f, f.Close
	}
	if strings.EqualFold(filepath.Ext(path), ".sse") {
		return stream.NewSSEReader(r), closeFn, nil
	}
	return stream.NewJSONLReader(r), closeFn, nil
}

// interpretFile runs the interpreter over a recorded stream. A read error
// part way is reported together with whatever was interpreted.
func interpretFile(ctx context.Context, path string, opts ...trace.Option) (trace.Result, error) {
	src, closeSrc, err := openSource(path, os.Stdin)
	if err != nil {
		return trace.Result{}, err
	}
	defer closeSrc()
	return interpretSource(ctx, path, src, opts...)
}

func interpretSource(ctx context.Context, path string, src trace.Source, opts ...trace.Option) (trace.Result, error) {
	res, err := trace.NewInterpreter(opts...).Interpret(ctx, src)
	if err != nil {
		return res, fmt.Errorf("replay %s: %w", path, err)
	}
	return res, nil
}

func printResult(w io.Writer, format string, res trace.Result, termOpts ...render.TerminalOption) error {
	switch strings.ToLower(format) {
	case "text", "":
		render.NewTerminal(w, termOpts...).Result(res)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "dot":
		out, err := render.DOT(res.Traces)
		if err != nil {
			return err
		}
		fmt.Fprint(w, out)
	default:
		return fmt.Errorf("unknown format %q: use text, json or dot", format)
	}
	return nil
}

// writeResult writes res as indented JSON to path. An empty path is a
// no-op.
func writeResult(path string, res trace.Result) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
