package diagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

const (
	systemPrompt = "You are an expert python programmer that has mastered the Diagrams library. " +
		"You are able to write code to generate AWS diagrams based on what the user asks. " +
		"Only return the code as it will be run through a program to generate the diagram for the user."

	// codePrefill starts the assistant turn so the reply is bare code that
	// ends at the closing fence.
	codePrefill = "Here is the code with no explanation ```python"
	codeFence   = "```"
	maxTokens   = 4096
	scriptName  = "diagram.py"
)

// ErrNoDiagram is returned when generated code never opens a Diagram block.
var ErrNoDiagram = errors.New("generated code does not create a diagram")

// Diagram is a rendered architecture diagram.
type Diagram struct {
	Name string
	Data []byte
	Code string
}

// Generator asks a model for diagrams code and runs it.
type Generator struct {
	client  llm.Client
	model   string
	mapping Mapping
	runner  Runner
	workDir string
	backoff llm.Backoff
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithMapping sets the service-to-module mapping used to repair imports.
func WithMapping(m Mapping) GeneratorOption {
	return func(g *Generator) { g.mapping = m }
}

// WithRunner replaces the Python runner.
func WithRunner(r Runner) GeneratorOption {
	return func(g *Generator) { g.runner = r }
}

// WithWorkDir sets the parent of the per-attempt scratch directories.
func WithWorkDir(dir string) GeneratorOption {
	return func(g *Generator) { g.workDir = dir }
}

// WithBackoff sets the retry policy for the generate-and-run cycle.
func WithBackoff(b llm.Backoff) GeneratorOption {
	return func(g *Generator) { g.backoff = b }
}

// NewGenerator creates a Generator that sends requests for model to client.
func NewGenerator(client llm.Client, model string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:  client,
		model:   model,
		mapping: DefaultMapping(),
		runner:  PythonRunner{},
		backoff: llm.DefaultBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Client returns the model client used for code generation.
func (g *Generator) Client() llm.Client { return g.client }

// Model returns the model name sent with each request.
func (g *Generator) Model() string { return g.model }

// Generate produces a diagram for query. Each attempt asks for fresh code;
// a failed run or a missing image counts as a failed attempt.
func (g *Generator) Generate(ctx context.Context, query string) (Diagram, error) {
	d, err := llm.Retry(ctx, g.backoff, func(ctx context.Context) (Diagram, error) {
		return g.attempt(ctx, query)
	})
	if err != nil {
		return Diagram{}, fmt.Errorf("generate diagram: %w", err)
	}
	return d, nil
}

func (g *Generator) attempt(ctx context.Context, query string) (Diagram, error) {
	code, err := g.Code(ctx, query)
	if err != nil {
		return Diagram{}, err
	}
	cleaned, filename := ProcessCode(code)
	if filename == "" {
		return Diagram{}, ErrNoDiagram
	}
	cleaned = CorrectImports(stripFences(cleaned), g.mapping)

	dir, err := os.MkdirTemp(g.workDir, "diagram-*")
	if err != nil {
		return Diagram{}, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, scriptName), []byte(cleaned), 0o644); err != nil {
		return Diagram{}, fmt.Errorf("write script: %w", err)
	}
	out, err := g.runner.Run(ctx, dir, scriptName)
	if err != nil {
		slog.Warn("diagram script failed", "output", out, "error", err)
		return Diagram{}, err
	}

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Diagram{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(data) == 0 {
		return Diagram{}, fmt.Errorf("%s: %w", filename, llm.ErrEmptyResult)
	}
	data, err = artifact.NormalizePNG(data)
	if err != nil {
		return Diagram{}, fmt.Errorf("%s: %w", filename, err)
	}
	slog.Info("diagram generated", "name", filename, "bytes", len(data))
	return Diagram{Name: filename, Data: data, Code: cleaned}, nil
}

// Code asks the model for diagrams code answering query. The reply starts
// after the prefilled fence and stops before the closing one.
func (g *Generator) Code(ctx context.Context, query string) (string, error) {
	resp, err := g.client.Complete(ctx, llm.GenerateRequest{
		Model:         g.model,
		System:        systemPrompt,
		MaxTokens:     maxTokens,
		StopSequences: []string{codeFence},
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleUser, query),
			llm.TextMessage(llm.RoleAssistant, codePrefill),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := resp.Text()
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("generate code: %w", llm.ErrEmptyResult)
	}
	return code, nil
}
