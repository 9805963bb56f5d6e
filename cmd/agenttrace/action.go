package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/actiongroup"
	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/config"
)

// buildActionRegistry wires every action-group function to its backing
// services. Functions whose storage is not configured fall back to the
// local filesystem.
func buildActionRegistry(ctx context.Context, cfg config.Config) (*actiongroup.Registry, func() error, error) {
	gen, err := newGenerator(cfg.Diagram)
	if err != nil {
		return nil, nil, err
	}
	web, webModel, err := newModel(cfg.Website.Model)
	if err != nil {
		return nil, nil, err
	}

	uploads, closeUploads, err := uploadStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if uploads == nil {
		uploads = localStore(cfg.Storage.ImageDir)
	}

	var csvLoader artifact.Loader = localStore(cfg.Storage.FileDir)
	if cfg.CSV.Bucket != "" {
		if csvLoader, err = s3Store(ctx, cfg, cfg.CSV.Bucket); err != nil {
			closeUploads()
			return nil, nil, err
		}
	}

	reg := actiongroup.NewRegistry(
		actiongroup.NewDiagramFunction(gen, uploads),
		actiongroup.NewWebsiteFunction(web, webModel,
			actiongroup.WithReaderURL(cfg.Website.ReaderURL),
			actiongroup.WithAPIKey(cfg.Website.APIKey)),
		actiongroup.NewCSVRowsFunction(csvLoader, cfg.CSV.Key),
	)
	if fetcher, ok := uploads.(actiongroup.Fetcher); ok {
		reg.Register(actiongroup.NewDescribeImageFunction(fetcher, gen.Client(), gen.Model()))
	}
	return reg, closeUploads, nil
}

func actionCmd(o *rootOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "action <event.json|->",
		Short: "Run an action-group function on a recorded request event",
		Long: `Action decodes an action-group request event, runs the named function and
prints the response envelope the agent runtime expects.

Functions: generate_diagram, website_to_text, count_csv_rows and, when
uploads go to S3, describe_image.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext(cmd.Context())
			reg, closeReg, err := buildActionRegistry(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer closeReg()
			if list {
				for _, name := range reg.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			event, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			out, err := actiongroup.NewHandler(reg).HandleJSON(ctx, event)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the configured function names and exit")
	return cmd
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return data, nil
}
