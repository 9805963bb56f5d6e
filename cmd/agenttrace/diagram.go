package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/config"
	"github.com/ravi-parthasarathy/agenttrace/pkg/diagram"
	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

// newGenerator builds the diagram generator described by cfg.
func newGenerator(cfg config.DiagramConfig) (*diagram.Generator, error) {
	client, name, err := newModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	opts := []diagram.GeneratorOption{
		diagram.WithRunner(diagram.PythonRunner{Python: cfg.Python, Timeout: cfg.Timeout}),
		diagram.WithWorkDir(cfg.WorkDir),
		diagram.WithBackoff(llm.Backoff{MaxAttempts: cfg.MaxAttempts, InitialDelay: cfg.InitialDelay}),
	}
	if cfg.MappingFile != "" {
		m, err := diagram.LoadMapping(cfg.MappingFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, diagram.WithMapping(m))
	}
	return diagram.NewGenerator(client, name, opts...), nil
}

func diagramCmd(o *rootOptions) *cobra.Command {
	var (
		outDir   string
		showCode bool
	)

	cmd := &cobra.Command{
		Use:   "diagram <description>...",
		Short: "Generate an AWS architecture diagram locally",
		Long: `Diagram asks a model for Python "diagrams" code, repairs its imports and
runs it. The Python interpreter must have the diagrams package and graphviz
installed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := newGenerator(o.cfg.Diagram)
			if err != nil {
				return err
			}
			ctx := signalContext(cmd.Context())
			d, err := gen.Generate(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = o.cfg.Storage.ImageDir
			}
			loc, err := localStore(outDir).Save(ctx, d.Name, "image/png", d.Data)
			if err != nil {
				return err
			}
			if showCode {
				fmt.Fprintln(cmd.OutOrStdout(), d.Code)
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "directory for the PNG (default storage.image_dir)")
	cmd.Flags().BoolVar(&showCode, "code", false, "print the generated code")
	return cmd
}
