package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ravi-parthasarathy/agenttrace/pkg/llm"
)

func init() {
	llm.RegisterProvider("gemini", func(modelName string) (llm.Client, error) {
		return newGeminiClient(modelName)
	})
}

type geminiClient struct {
	sdk       *genai.Client
	modelName string
}

func newGeminiClient(modelName string) (*geminiClient, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("gemini: GEMINI_API_KEY environment variable not set")
	}
	// genai.NewClient requires a context; use Background for construction.
	sdk, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &geminiClient{sdk: sdk, modelName: modelName}, nil
}

// session prepares a chat session holding every message but the last user
// turn, which is returned as the parts to send.
func (c *geminiClient) session(req llm.GenerateRequest) (*genai.ChatSession, []genai.Part, error) {
	name := c.modelName
	if req.Model != "" {
		name = req.Model
	}
	model := c.sdk.GenerativeModel(name)
	configureGemini(model, req)

	history, last := buildGeminiContents(req.Messages)
	if last == nil {
		return nil, nil, fmt.Errorf("gemini: no user message to send")
	}
	cs := model.StartChat()
	cs.History = history
	return cs, last.Parts, nil
}

// Complete performs a blocking generation with automatic retry on transient errors.
func (c *geminiClient) Complete(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	cs, parts, err := c.session(req)
	if err != nil {
		return llm.GenerateResponse{}, err
	}
	var resp llm.GenerateResponse
	err = llm.WithRetry(ctx, 4, func() error {
		out, err := cs.SendMessage(ctx, parts...)
		if err != nil {
			return mapGeminiError(err)
		}
		resp = convertGeminiResponse(out)
		return nil
	})
	return resp, err
}

// Stream emits text deltas then a final complete event.
func (c *geminiClient) Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	cs, parts, err := c.session(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		it := cs.SendMessageStream(ctx, parts...)
		var (
			text string
			last *genai.GenerateContentResponse
		)
		for {
			out, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				ch <- llm.StreamEvent{Type: llm.StreamEventError, Err: mapGeminiError(err)}
				return
			}
			last = out
			delta := convertGeminiResponse(out).Text()
			if delta != "" {
				text += delta
				ch <- llm.StreamEvent{Type: llm.StreamEventDelta, Text: delta}
			}
		}
		resp := llm.GenerateResponse{StopReason: llm.StopReasonEndTurn}
		if last != nil {
			resp = convertGeminiResponse(last)
		}
		resp.Content = []llm.ContentBlock{{Type: llm.ContentTypeText, Text: text}}
		ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &resp}
	}()
	return ch, nil
}

// ─── request translation ─────────────────────────────────────────────────────

func configureGemini(model *genai.GenerativeModel, req llm.GenerateRequest) {
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if len(req.StopSequences) > 0 {
		model.StopSequences = req.StopSequences
	}
	// System prompt goes to SystemInstruction, not the message history.
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
}

// buildGeminiContents translates unified messages into Gemini's format and
// splits off the last user turn. Gemini has no assistant prefill, so a
// trailing assistant message is dropped.
func buildGeminiContents(msgs []llm.Message) (history []*genai.Content, last *genai.Content) {
	if n := len(msgs); n > 0 && msgs[n-1].Role == llm.RoleAssistant {
		slog.Debug("gemini: dropping assistant prefill")
		msgs = msgs[:n-1]
	}
	var contents []*genai.Content
	for _, m := range msgs {
		var role string
		switch m.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			continue // system handled via model.SystemInstruction
		}
		parts := geminiParts(m.Content)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return contents, nil
	}
	return contents[:len(contents)-1], contents[len(contents)-1]
}

func geminiParts(blocks []llm.ContentBlock) []genai.Part {
	var parts []genai.Part
	for _, b := range blocks {
		switch b.Type {
		case llm.ContentTypeText:
			if b.Text != "" {
				parts = append(parts, genai.Text(b.Text))
			}
		case llm.ContentTypeImage:
			if b.Image != nil {
				parts = append(parts, genai.Blob{MIMEType: b.Image.MediaType, Data: b.Image.Data})
			}
		}
	}
	return parts
}

// ─── response conversion ─────────────────────────────────────────────────────

func convertGeminiResponse(resp *genai.GenerateContentResponse) llm.GenerateResponse {
	var blocks []llm.ContentBlock
	stopReason := llm.StopReasonEndTurn

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok && t != "" {
					blocks = append(blocks, llm.ContentBlock{Type: llm.ContentTypeText, Text: string(t)})
				}
			}
		}
		if cand.FinishReason == genai.FinishReasonMaxTokens {
			stopReason = llm.StopReasonMaxTokens
		}
	}

	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return llm.GenerateResponse{
		Content:    blocks,
		StopReason: stopReason,
		Usage:      usage,
	}
}

// ─── error mapping ────────────────────────────────────────────────────────────

func mapGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return llm.HTTPError(apiErr.Code, apiErr.Message, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
