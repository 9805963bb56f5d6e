package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

// newModel builds a client for a "provider:model" ID and returns the bare
// model name to put in requests.
func newModel(id string) (llm.Client, string, error) {
	provider, name, err := llm.ParseModelID(id)
	if err != nil {
		return nil, "", err
	}
	if known := llm.Providers(); !slices.Contains(known, provider) {
		return nil, "", fmt.Errorf("unknown model provider %q: use one of %s", provider, strings.Join(known, ", "))
	}
	client, err := llm.NewClient(id)
	if err != nil {
		return nil, "", err
	}
	return client, name, nil
}

// runAsk sends req and writes the answer to out. When stream is false the
// answer is collected and written once it is complete.
func runAsk(ctx context.Context, client llm.Client, req llm.GenerateRequest, out io.Writer, stream bool) error {
	ch, err := client.Stream(ctx, req)
	if err != nil {
		return err
	}
	if !stream {
		resp, err := llm.CollectStream(ch)
		fmt.Fprintln(out, resp.Text())
		return err
	}
	var streamErr error
	for ev := range ch {
		switch ev.Type {
		case llm.StreamEventDelta:
			fmt.Fprint(out, ev.Text)
		case llm.StreamEventError:
			streamErr = errors.Join(streamErr, ev.Err)
		}
	}
	fmt.Fprintln(out)
	return streamErr
}

func askCmd(o *rootOptions) *cobra.Command {
	var (
		model         string
		system        string
		image         string
		maxTokens     int
		noStream      bool
		listProviders bool
	)

	cmd := &cobra.Command{
		Use:   "ask <prompt>...",
		Short: "Send one prompt straight to a model and stream the answer",
		Args: func(cmd *cobra.Command, args []string) error {
			if listProviders {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if listProviders {
				for _, p := range llm.Providers() {
					fmt.Fprintln(out, p)
				}
				return nil
			}
			if model == "" {
				model = o.cfg.Website.Model
			}
			client, name, err := newModel(model)
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			msg := llm.TextMessage(llm.RoleUser, prompt)
			if image != "" {
				data, err := os.ReadFile(image)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				msg = llm.ImageMessage(prompt, artifact.ContentType(image, ""), data)
			}

			req := llm.GenerateRequest{
				Model:     name,
				System:    system,
				MaxTokens: maxTokens,
				Messages:  []llm.Message{msg},
			}
			return runAsk(signalContext(cmd.Context()), client, req, out, !noStream)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model ID as provider:model (default website.model from config)")
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().StringVar(&image, "image", "", "image file to send with the prompt")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 4096, "maximum tokens to generate")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "print the answer once it is complete")
	cmd.Flags().BoolVar(&listProviders, "list-providers", false, "print the registered model providers and exit")
	return cmd
}
