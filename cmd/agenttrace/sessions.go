package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/render"
	"github.com/ravi-parthasarathy/agenttrace/pkg/transcript"
)

func sessionsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, show or delete stored chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := transcript.Open(o.cfg.Transcript.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			infos, err := store.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tTURNS\tLAST ACTIVITY")
			for _, s := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.ID, s.Turns, s.LastAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the turns of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := transcript.Open(o.cfg.Transcript.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			turns, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			term := render.NewTerminal(cmd.OutOrStdout(), o.terminalOptions()...)
			for _, t := range turns {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", t.At.Local().Format(time.DateTime), t.Role)
				for _, e := range t.Traces {
					term.Entry(e)
				}
				for _, w := range t.Warnings {
					term.Warning(w)
				}
				term.Reply(t.Text)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := transcript.Open(o.cfg.Transcript.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(cmd.Context(), args[0])
		},
	})
	return cmd
}
