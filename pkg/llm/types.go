package llm

import (
	"fmt"
	"strings"
)

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentType identifies what kind of content a block holds.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// ContentBlock is one element in a message's content array.
type ContentBlock struct {
	Type  ContentType `json:"type"`
	Text  string      `json:"text,omitempty"`
	Image *Image      `json:"image,omitempty"`
}

// Image is inline image data attached to a user message.
type Image struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// Message is one turn in a conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage is a convenience constructor for a plain-text message.
func TextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: ContentTypeText, Text: text}},
	}
}

// ImageMessage is a user message carrying text followed by one image.
func ImageMessage(text, mediaType string, data []byte) Message {
	m := TextMessage(RoleUser, text)
	m.Content = append(m.Content, ContentBlock{
		Type:  ContentTypeImage,
		Image: &Image{MediaType: mediaType, Data: data},
	})
	return m
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string { return joinText(m.Content) }

// GenerateRequest is the unified input to the LLM client.
type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`

	// StopSequences end generation when the model emits any of them.
	// A trailing assistant message is a prefill the model continues from.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// Prefill returns the text of a trailing assistant message, if any.
func (r GenerateRequest) Prefill() (string, bool) {
	if len(r.Messages) == 0 {
		return "", false
	}
	last := r.Messages[len(r.Messages)-1]
	if last.Role != RoleAssistant {
		return "", false
	}
	return last.Text(), true
}

// StopReason explains why generation stopped.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// GenerateResponse is the unified output from the LLM client.
type GenerateResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Text concatenates the text blocks of the response.
func (r GenerateResponse) Text() string { return joinText(r.Content) }

func joinText(blocks []ContentBlock) string {
	var b strings.Builder
	for _, c := range blocks {
		if c.Type == ContentTypeText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// StreamEventType identifies a streaming event.
type StreamEventType string

const (
	StreamEventDelta    StreamEventType = "delta"
	StreamEventComplete StreamEventType = "complete"
	StreamEventError    StreamEventType = "error"
)

// StreamEvent is one chunk emitted during streaming generation.
type StreamEvent struct {
	Type     StreamEventType   `json:"type"`
	Text     string            `json:"text,omitempty"`
	Response *GenerateResponse `json:"response,omitempty"`
	Err      error             `json:"-"`
}

// ParseModelID splits "provider:model-name" into (provider, modelName, nil).
// Only the first colon separates; Bedrock model IDs such as
// "bedrock:anthropic.claude-3-sonnet-20240229-v1:0" keep their own colons.
func ParseModelID(id string) (provider, modelName string, err error) {
	p, m, ok := strings.Cut(id, ":")
	if !ok {
		return "", "", fmt.Errorf("model ID %q: missing 'provider:model-name' format", id)
	}
	if p == "" {
		return "", "", fmt.Errorf("model ID %q: empty provider name", id)
	}
	if m == "" {
		return "", "", fmt.Errorf("model ID %q: empty model name", id)
	}
	return p, m, nil
}
