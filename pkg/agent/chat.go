// Package agent drives a conversation with a remote agent runtime: it keeps
// the session history, uploads attachments, invokes the agent and folds the
// streamed response into a trace.Result.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

// Request is one call to the agent runtime.
type Request struct {
	SessionID  string
	InputText  string
	EndSession bool
}

// Invoker starts an agent invocation and returns its response stream.
// If the returned source also implements io.Closer, Chat closes it once the
// response has been interpreted.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (trace.Source, error)
}

// TurnStore persists chat turns.
type TurnStore interface {
	SaveTurn(ctx context.Context, sessionID string, t Turn) error
}

// Attachment is a file sent along with a prompt.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Chat is a conversation with one agent. It is not safe for concurrent use;
// one message is processed at a time.
type Chat struct {
	invoker      Invoker
	session      *Session
	interpOpts   []trace.Option
	uploader     artifact.Store
	store        TurnStore
	historyLimit int
	onEvent      func(Event)
	now          func() time.Time
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithInterpreterOptions sets the options used to build the interpreter
// for each message.
func WithInterpreterOptions(opts ...trace.Option) ChatOption {
	return func(c *Chat) { c.interpOpts = append(c.interpOpts, opts...) }
}

// WithUploader sets where attachments are uploaded; their locations are
// appended to the prompt.
func WithUploader(s artifact.Store) ChatOption {
	return func(c *Chat) { c.uploader = s }
}

// WithTranscript persists every turn to s.
func WithTranscript(s TurnStore) ChatOption {
	return func(c *Chat) { c.store = s }
}

// WithHistoryLimit bounds the in-memory history to roughly n turns. The
// first turns are always kept.
func WithHistoryLimit(n int) ChatOption {
	return func(c *Chat) { c.historyLimit = n }
}

// WithEventHandler registers a callback for live progress events.
func WithEventHandler(f func(Event)) ChatOption {
	return func(c *Chat) { c.onEvent = f }
}

// WithSession continues an existing session instead of starting a new one.
func WithSession(s *Session) ChatOption {
	return func(c *Chat) { c.session = s }
}

// WithClock overrides the time source used to stamp turns.
func WithClock(now func() time.Time) ChatOption {
	return func(c *Chat) { c.now = now }
}

// NewChat creates a Chat talking to inv.
func NewChat(inv Invoker, opts ...ChatOption) *Chat {
	c := &Chat{invoker: inv, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.session == nil {
		c.session = NewSession()
	}
	return c
}

// Session returns the current session.
func (c *Chat) Session() *Session { return c.session }

// Reset starts a new session with an empty history.
func (c *Chat) Reset() {
	old := c.session.ID()
	c.session.Reset()
	slog.Info("chat session reset", "old_session", old, "session", c.session.ID())
}

// Send delivers prompt and any attachments to the agent and returns the
// interpreted response. Both the user turn and the assistant turn are
// recorded, even when the response stream fails part way; in that case the
// partial result is returned with an *InvokeError.
func (c *Chat) Send(ctx context.Context, prompt string, attachments ...Attachment) (trace.Result, error) {
	if strings.TrimSpace(prompt) == "" && len(attachments) == 0 {
		return trace.Result{}, ErrEmptyPrompt
	}

	input, err := c.withAttachments(ctx, prompt, attachments)
	if err != nil {
		return trace.Result{}, err
	}
	c.record(ctx, Turn{Role: RoleUser, Text: input, At: c.now()})

	sid := c.session.ID()
	slog.Info("invoking agent", "session", sid, "attachments", len(attachments))
	src, err := c.invoker.Invoke(ctx, Request{SessionID: sid, InputText: input})
	if err != nil {
		c.emit(Event{Type: EventTypeError, Content: err.Error(), IsError: true})
		return trace.Result{}, &InvokeError{SessionID: sid, Err: err}
	}
	if closer, ok := src.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				slog.Debug("close agent stream", "error", err)
			}
		}()
	}

	opts := append([]trace.Option{trace.WithObserver(func(n trace.Notice) {
		c.emit(eventFromNotice(n))
	})}, c.interpOpts...)
	res, ierr := trace.NewInterpreter(opts...).Interpret(ctx, src)

	c.record(ctx, Turn{
		Role:     RoleAssistant,
		Text:     res.Text,
		Images:   res.Images,
		Traces:   res.Traces,
		Warnings: res.Warnings,
		At:       c.now(),
	})
	if ierr != nil {
		c.emit(Event{Type: EventTypeError, Content: ierr.Error(), IsError: true})
		return res, &InvokeError{SessionID: sid, Err: ierr}
	}
	c.emit(Event{Type: EventTypeReply, Content: res.Text})
	slog.Info("agent replied", "session", sid,
		"traces", len(res.Traces), "images", len(res.Images), "diagnostics", len(res.Diagnostics))
	return res, nil
}

// End tells the runtime the session is over and starts a new local one.
func (c *Chat) End(ctx context.Context) error {
	sid := c.session.ID()
	src, err := c.invoker.Invoke(ctx, Request{SessionID: sid, InputText: "end", EndSession: true})
	if err != nil {
		return &InvokeError{SessionID: sid, Err: err}
	}
	if closer, ok := src.(io.Closer); ok {
		_ = closer.Close()
	}
	c.Reset()
	return nil
}

// withAttachments uploads attachments and appends a line naming each
// uploaded location to the prompt.
func (c *Chat) withAttachments(ctx context.Context, prompt string, atts []Attachment) (string, error) {
	if len(atts) == 0 {
		return prompt, nil
	}
	if c.uploader == nil {
		return "", errors.New("attachments given but no uploader configured")
	}
	items := make([]artifact.Item, len(atts))
	for i, a := range atts {
		items[i] = artifact.Item{Name: a.Name, MIMEType: artifact.ContentType(a.Name, a.MIMEType), Data: a.Data}
	}
	locs, err := artifact.SaveAll(ctx, c.uploader, items)
	if err != nil {
		return "", fmt.Errorf("upload attachments: %w", err)
	}
	var b strings.Builder
	b.WriteString(prompt)
	for _, loc := range locs {
		c.emit(Event{Type: EventTypeUpload, Content: loc})
		fmt.Fprintf(&b, "\n\nhere is the image: %s", loc)
	}
	return b.String(), nil
}

func (c *Chat) record(ctx context.Context, t Turn) {
	c.session.Append(t)
	if c.historyLimit > 0 && c.session.Len() > c.historyLimit {
		head := min(defaultTruncationHeadTurns, c.historyLimit)
		c.session.Truncate(head, max(c.historyLimit-head, 0))
	}
	if c.store == nil {
		return
	}
	if err := c.store.SaveTurn(ctx, c.session.ID(), t); err != nil {
		slog.Warn("failed to persist chat turn", "session", c.session.ID(), "error", err)
	}
}

func (c *Chat) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}
