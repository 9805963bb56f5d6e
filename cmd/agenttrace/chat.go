package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/agenttrace/pkg/agent"
	"github.com/ravi-parthasarathy/agenttrace/pkg/agentcore"
	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/bedrock"
	"github.com/ravi-parthasarathy/agenttrace/pkg/config"
	"github.com/ravi-parthasarathy/agenttrace/pkg/render"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
	"github.com/ravi-parthasarathy/agenttrace/pkg/transcript"
)

const chatHelp = `commands:
  /attach <file>  send a file with the next message
  /reset          end the session and start a new one
  /quit           end the session and exit`

func chatCmd(o *rootOptions) *cobra.Command {
	var (
		resume   string
		fullText bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured agent, showing its trace live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := o.cfg
			if err := cfg.RequireAgent(); err != nil {
				return err
			}
			ctx := signalContext(cmd.Context())

			inv, err := newInvoker(ctx, cfg.Agent)
			if err != nil {
				return err
			}
			// AgentCore streams replies as many small chunks.
			if cfg.Agent.UsesRuntime() {
				fullText = true
			}
			term := render.NewTerminal(cmd.OutOrStdout(), o.terminalOptions()...)
			opts := []agent.ChatOption{
				agent.WithInterpreterOptions(interpreterOptions(cfg, fullText)...),
				agent.WithEventHandler(term.Event),
				agent.WithHistoryLimit(cfg.Transcript.HistoryLimit),
			}

			uploader, closeUploader, err := uploadStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeUploader()
			if uploader != nil {
				opts = append(opts, agent.WithUploader(uploader))
			}

			if cfg.Transcript.Path != "" {
				store, err := transcript.Open(cfg.Transcript.Path)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, agent.WithTranscript(store))
				if resume != "" {
					turns, err := store.Load(ctx, resume)
					if err != nil {
						return err
					}
					opts = append(opts, agent.WithSession(agent.ResumeSession(resume, turns)))
				}
			} else if resume != "" {
				return errors.New("--resume needs a transcript path")
			}

			var fetcher imageFetcher
			if cfg.Storage.Bucket != "" {
				if fetcher, err = s3Store(ctx, cfg, cfg.Storage.Bucket); err != nil {
					return err
				}
			}

			chat := agent.NewChat(inv, opts...)
			fmt.Fprintf(cmd.OutOrStdout(), "session %s\n%s\n", chat.Session().ID(), chatHelp)
			return runChat(ctx, chat, cmd.InOrStdin(), cmd.OutOrStdout(), term, fetcher, localStore(cfg.Storage.ImageDir))
		},
	}

	cmd.Flags().StringVar(&resume, "resume", "", "continue a stored session by ID")
	cmd.Flags().BoolVar(&fullText, "full-text", false, "read every text chunk instead of stopping at the first")
	return cmd
}

// newInvoker targets the AgentCore runtime when one is configured and the
// Bedrock agent alias otherwise.
func newInvoker(ctx context.Context, a config.AgentConfig) (agent.Invoker, error) {
	if a.UsesRuntime() {
		return agentcore.NewInvokerFromConfig(ctx, a.Region, a.RuntimeARN, a.RuntimeName)
	}
	return bedrock.NewInvokerFromConfig(ctx, a.Region, a.ID, a.AliasID)
}

// imageFetcher downloads images the agent links to in its reply.
type imageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// runChat reads prompts from in until EOF or /quit.
func runChat(ctx context.Context, chat *agent.Chat, in io.Reader, out io.Writer, term *render.Terminal,
	fetcher imageFetcher, images artifact.Store) error {
	sc := bufio.NewScanner(in)
	var pending []agent.Attachment
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
			continue
		case "/quit", "/exit":
			return chat.End(ctx)
		case "/reset":
			if err := chat.End(ctx); err != nil {
				term.Error(err.Error())
				continue
			}
			pending = nil
			fmt.Fprintf(out, "new session %s\n", chat.Session().ID())
			continue
		case "/attach":
			att, err := readAttachment(strings.TrimSpace(arg))
			if err != nil {
				term.Error(err.Error())
				continue
			}
			pending = append(pending, att)
			fmt.Fprintf(out, "attached %s\n", att.Name)
			continue
		case "/help":
			fmt.Fprintln(out, chatHelp)
			continue
		}

		res, err := chat.Send(ctx, line, pending...)
		pending = nil
		term.Artifacts(res)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ie *agent.InvokeError
			if !errors.As(err, &ie) {
				term.Error(err.Error())
			}
			continue
		}
		if fetcher != nil {
			downloadLinkedImages(ctx, res.Text, fetcher, images, term)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// downloadLinkedImages saves every S3 object URL mentioned in text.
func downloadLinkedImages(ctx context.Context, text string, fetcher imageFetcher, images artifact.Store, term *render.Terminal) {
	for _, url := range artifact.ExtractS3URLs(text) {
		data, err := fetcher.Fetch(ctx, url)
		if err != nil {
			term.Error(fmt.Sprintf("Error downloading image from S3: %v", err))
			continue
		}
		loc, err := images.Save(ctx, path.Base(url), "", data)
		if err != nil {
			term.Error(err.Error())
			continue
		}
		term.Artifacts(trace.Result{Images: []string{loc}})
	}
}

func readAttachment(p string) (agent.Attachment, error) {
	if p == "" {
		return agent.Attachment{}, errors.New("usage: /attach <file>")
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return agent.Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	return agent.Attachment{Name: filepath.Base(p), Data: data}, nil
}
