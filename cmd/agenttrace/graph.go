package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/render"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

func graphCmd(o *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <events.jsonl|events.sse|->",
		Short: "Print the sequence of trace steps in a recorded stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext(cmd.Context())
			res, err := interpretFile(ctx, args[0], interpreterOptions(o.cfg, true)...)
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case "dot":
				out, err := render.DOT(res.Traces)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
			case "text", "":
				fmt.Fprint(cmd.OutOrStdout(), renderText(res))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "dot", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// renderText produces a one-line-per-step summary.
func renderText(res trace.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Trace: %d steps, %d images, %d files\n\n", len(res.Traces), len(res.Images), len(res.Files))

	maxKindLen := 4
	for _, e := range res.Traces {
		if len(e.Kind) > maxKindLen {
			maxKindLen = len(e.Kind)
		}
	}
	for i, e := range res.Traces {
		mark := " "
		if e.IsError {
			mark = "!"
		}
		first, _, _ := strings.Cut(strings.TrimSpace(e.Text), "\n")
		fmt.Fprintf(&sb, "%3d %s %-*s  %s\n", i+1, mark, maxKindLen, string(e.Kind), truncate(first, 60))
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&sb, "\nwarning: %s", w)
	}
	if len(res.Warnings) > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}
