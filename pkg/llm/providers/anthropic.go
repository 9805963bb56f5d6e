// Package providers registers LLM provider adapters.
// Import this package with a blank identifier to activate all providers:
//
//	import _ "github.com/ravi-parthasarathy/agenttrace/pkg/llm/providers"
package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

const defaultMaxTokens = 4096

func init() {
	llm.RegisterProvider("anthropic", func(modelName string) (llm.Client, error) {
		// reads ANTHROPIC_API_KEY automatically
		return newAnthropicClient("anthropic", modelName, option.WithAPIKey("")), nil
	})
	// Claude on Bedrock, authenticated through the AWS default credential
	// chain (env, shared config, instance role).
	llm.RegisterProvider("bedrock", func(modelName string) (llm.Client, error) {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("bedrock: load aws config: %w", err)
		}
		return newAnthropicClient("bedrock", modelName, bedrock.WithConfig(cfg)), nil
	})
}

type anthropicClient struct {
	sdk       anthropicsdk.Client
	provider  string
	modelName string
}

func newAnthropicClient(provider, modelName string, opts ...option.RequestOption) *anthropicClient {
	return &anthropicClient{
		sdk:       anthropicsdk.NewClient(opts...),
		provider:  provider,
		modelName: modelName,
	}
}

// Complete performs a blocking generation with automatic retry on transient errors.
func (a *anthropicClient) Complete(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	params := anthropicParams(a.modelName, req)
	var resp llm.GenerateResponse
	err := llm.WithRetry(ctx, 4, func() error {
		msg, err := a.sdk.Messages.New(ctx, params)
		if err != nil {
			return mapAnthropicError(a.provider, err)
		}
		resp = convertAnthropicMessage(msg)
		return nil
	})
	return resp, err
}

// Stream emits text deltas as they arrive, then a complete event built
// from the accumulated message.
func (a *anthropicClient) Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	params := anthropicParams(a.modelName, req)
	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		stream := a.sdk.Messages.NewStreaming(ctx, params)
		defer func() { _ = stream.Close() }()

		var msg anthropicsdk.Message
		for stream.Next() {
			ev := stream.Current()
			if err := msg.Accumulate(ev); err != nil {
				ch <- llm.StreamEvent{Type: llm.StreamEventError, Err: err}
				return
			}
			delta, ok := ev.AsAny().(anthropicsdk.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if text, ok := delta.Delta.AsAny().(anthropicsdk.TextDelta); ok && text.Text != "" {
				ch <- llm.StreamEvent{Type: llm.StreamEventDelta, Text: text.Text}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- llm.StreamEvent{Type: llm.StreamEventError, Err: mapAnthropicError(a.provider, err)}
			return
		}
		resp := convertAnthropicMessage(&msg)
		ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &resp}
	}()
	return ch, nil
}

// anthropicParams converts a unified request. A trailing assistant message
// is passed through unchanged, which the Messages API treats as a prefill.
func anthropicParams(model string, req llm.GenerateRequest) anthropicsdk.MessageNewParams {
	msgs := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case llm.ContentTypeText:
				blocks = append(blocks, anthropicsdk.NewTextBlock(b.Text))
			case llm.ContentTypeImage:
				if b.Image != nil {
					blocks = append(blocks, anthropicsdk.NewImageBlockBase64(
						b.Image.MediaType,
						base64.StdEncoding.EncodeToString(b.Image.Data),
					))
				}
			}
		}
		switch m.Role {
		case llm.RoleUser:
			msgs = append(msgs, anthropicsdk.NewUserMessage(blocks...))
		case llm.RoleAssistant:
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(blocks...))
		}
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	if req.Model != "" {
		model = req.Model
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	return params
}

func convertAnthropicMessage(msg *anthropicsdk.Message) llm.GenerateResponse {
	blocks := make([]llm.ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		if b.Type == "text" {
			blocks = append(blocks, llm.ContentBlock{Type: llm.ContentTypeText, Text: b.Text})
		}
	}

	stop := llm.StopReasonEndTurn
	switch msg.StopReason {
	case anthropicsdk.StopReasonStopSequence:
		stop = llm.StopReasonStopSequence
	case anthropicsdk.StopReasonMaxTokens:
		stop = llm.StopReasonMaxTokens
	}

	return llm.GenerateResponse{
		Content:    blocks,
		StopReason: stop,
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func mapAnthropicError(provider string, err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return llm.HTTPError(apiErr.StatusCode, apiErr.Error(), err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}
