package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

func init() {
	llm.RegisterProvider("openai", func(modelName string) (llm.Client, error) {
		return newOpenAIClient(modelName)
	})
}

type openaiClient struct {
	sdk       *openai.Client
	modelName string
}

func newOpenAIClient(modelName string) (*openaiClient, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("openai: OPENAI_API_KEY environment variable not set")
	}
	return &openaiClient{
		sdk:       openai.NewClient(key),
		modelName: modelName,
	}, nil
}

// Complete performs a blocking generation with automatic retry on transient errors.
func (c *openaiClient) Complete(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	params := openaiRequest(c.modelName, req)
	var resp llm.GenerateResponse
	err := llm.WithRetry(ctx, 4, func() error {
		out, err := c.sdk.CreateChatCompletion(ctx, params)
		if err != nil {
			return mapOpenAIError(err)
		}
		resp = convertOpenAIResponse(out)
		return nil
	})
	return resp, err
}

// Stream emits text deltas then a final complete event.
func (c *openaiClient) Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	params := openaiRequest(c.modelName, req)
	params.Stream = true
	stream, err := c.sdk.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		var (
			text   string
			finish openai.FinishReason
		)
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				ch <- llm.StreamEvent{Type: llm.StreamEventError, Err: mapOpenAIError(err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				text += choice.Delta.Content
				ch <- llm.StreamEvent{Type: llm.StreamEventDelta, Text: choice.Delta.Content}
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		resp := llm.GenerateResponse{
			Content:    []llm.ContentBlock{{Type: llm.ContentTypeText, Text: text}},
			StopReason: openaiStopReason(finish),
		}
		ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &resp}
	}()
	return ch, nil
}

// ─── request conversion ───────────────────────────────────────────────────────

// openaiRequest converts a unified request. A trailing assistant message is
// sent as an ordinary assistant turn; chat completions have no prefill.
func openaiRequest(model string, req llm.GenerateRequest) openai.ChatCompletionRequest {
	maxTokens := defaultMaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if req.Model != "" {
		model = req.Model
	}
	params := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  buildOpenAIMessages(req.Messages, req.System),
		Stop:      req.StopSequences,
	}
	if req.Temperature != nil {
		params.Temperature = float32(*req.Temperature)
	}
	return params
}

func buildOpenAIMessages(msgs []llm.Message, system string) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			out = append(out, openaiUserMessage(m))
		case llm.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Text(),
			})
		}
	}
	return out
}

// openaiUserMessage uses plain Content for text-only messages and
// MultiContent once an image is attached.
func openaiUserMessage(m llm.Message) openai.ChatCompletionMessage {
	if !hasImage(m.Content) {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text()}
	}
	parts := make([]openai.ChatMessagePart, 0, len(m.Content))
	for _, b := range m.Content {
		switch b.Type {
		case llm.ContentTypeText:
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: b.Text})
		case llm.ContentTypeImage:
			if b.Image == nil {
				continue
			}
			url := "data:" + b.Image.MediaType + ";base64," + base64.StdEncoding.EncodeToString(b.Image.Data)
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url},
			})
		}
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// convertOpenAIResponse maps an OpenAI response to the unified GenerateResponse.
func convertOpenAIResponse(resp openai.ChatCompletionResponse) llm.GenerateResponse {
	var (
		blocks []llm.ContentBlock
		finish openai.FinishReason
	)
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != "" {
			blocks = append(blocks, llm.ContentBlock{Type: llm.ContentTypeText, Text: choice.Message.Content})
		}
		finish = choice.FinishReason
	}
	return llm.GenerateResponse{
		Content:    blocks,
		StopReason: openaiStopReason(finish),
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}

func openaiStopReason(r openai.FinishReason) llm.StopReason {
	if r == openai.FinishReasonLength {
		return llm.StopReasonMaxTokens
	}
	return llm.StopReasonEndTurn
}

// ─── error mapping ────────────────────────────────────────────────────────────

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.HTTPError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	return fmt.Errorf("openai: %w", err)
}

func hasImage(blocks []llm.ContentBlock) bool {
	for _, b := range blocks {
		if b.Type == llm.ContentTypeImage {
			return true
		}
	}
	return false
}
