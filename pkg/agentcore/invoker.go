// Package agentcore invokes an agent hosted on Bedrock AgentCore Runtime and
// exposes its response body as a trace.Source.
package agentcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/agenttrace/pkg/agent"
	"github.com/ravi-parthasarathy/agenttrace/pkg/stream"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

// minSessionIDLen is the shortest runtime session ID AgentCore accepts.
const minSessionIDLen = 33

// ErrRuntimeNotFound is returned when no agent runtime has the requested name.
var ErrRuntimeNotFound = errors.New("agent runtime not found")

// RuntimeAPI is the subset of the AgentCore data plane client used here.
type RuntimeAPI interface {
	InvokeAgentRuntime(ctx context.Context, in *bedrockagentcore.InvokeAgentRuntimeInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error)
}

// ControlAPI is the subset of the AgentCore control plane client used to
// resolve runtime names.
type ControlAPI interface {
	ListAgentRuntimes(ctx context.Context, in *bedrockagentcorecontrol.ListAgentRuntimesInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListAgentRuntimesOutput, error)
}

// LookupRuntimeARN pages through the account's agent runtimes and returns
// the ARN of the one called name.
func LookupRuntimeARN(ctx context.Context, client ControlAPI, name string) (string, error) {
	var token *string
	for {
		out, err := client.ListAgentRuntimes(ctx, &bedrockagentcorecontrol.ListAgentRuntimesInput{NextToken: token})
		if err != nil {
			return "", fmt.Errorf("list agent runtimes: %w", err)
		}
		for _, rt := range out.AgentRuntimes {
			if aws.ToString(rt.AgentRuntimeName) == name {
				return aws.ToString(rt.AgentRuntimeArn), nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, name)
		}
		token = out.NextToken
	}
}

// Invoker calls one agent runtime. It implements agent.Invoker.
type Invoker struct {
	client RuntimeAPI
	arn    string
}

// NewInvoker returns an Invoker for the runtime at arn.
func NewInvoker(client RuntimeAPI, arn string) *Invoker {
	return &Invoker{client: client, arn: arn}
}

// NewInvokerFromConfig loads the AWS default configuration for region and
// builds an Invoker. When arn is empty the runtime is looked up by name.
func NewInvokerFromConfig(ctx context.Context, region, arn, name string) (*Invoker, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if arn == "" {
		if name == "" {
			return nil, errors.New("agent runtime not configured: set agent.runtime_arn or agent.runtime_name")
		}
		if arn, err = LookupRuntimeARN(ctx, bedrockagentcorecontrol.NewFromConfig(cfg), name); err != nil {
			return nil, err
		}
		slog.Debug("agent runtime resolved", "name", name, "arn", arn)
	}
	return NewInvoker(bedrockagentcore.NewFromConfig(cfg), arn), nil
}

// RuntimeSessionID maps a chat session ID onto one long enough for
// AgentCore. Short IDs become a name-based UUID, so the same chat session
// always reaches the same runtime session.
func RuntimeSessionID(id string) string {
	if len(id) >= minSessionIDLen {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("agenttrace:"+id)).String()
}

type payload struct {
	Prompt string `json:"prompt"`
}

// Invoke implements agent.Invoker. The runtime keeps no session state the
// client can end, so an EndSession request returns an empty stream without
// a call.
func (i *Invoker) Invoke(ctx context.Context, req agent.Request) (trace.Source, error) {
	if i.arn == "" {
		return nil, errors.New("invoke agent runtime: runtime arn not configured")
	}
	if req.EndSession {
		return stream.NewSliceReader(), nil
	}
	body, err := json.Marshal(payload{Prompt: req.InputText})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	sid := RuntimeSessionID(req.SessionID)
	out, err := i.client.InvokeAgentRuntime(ctx, &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn:  aws.String(i.arn),
		RuntimeSessionId: aws.String(sid),
		ContentType:      aws.String("application/json"),
		Payload:          body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke agent runtime %s: %w", i.arn, err)
	}
	ct := aws.ToString(out.ContentType)
	slog.Debug("agent runtime invoked", "arn", i.arn, "session", sid, "content_type", ct)
	if out.Response == nil {
		return stream.NewSliceReader(), nil
	}
	return newResponseReader(ct, out.Response)
}

// ResponseReader decodes an AgentCore response body. Payloads that are
// agent event objects pass through for decoding; bare strings and plain
// text become text chunks.
type ResponseReader struct {
	src       trace.Source
	body      io.Closer
	closeOnce sync.Once
	closeErr  error
}

// newResponseReader picks a framing from the response content type:
// text/event-stream is read as SSE, NDJSON one record per line, anything
// else as a single document.
func newResponseReader(contentType string, body io.ReadCloser) (*ResponseReader, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	r := &ResponseReader{body: body}
	switch mt {
	case "text/event-stream":
		r.src = stream.NewSSEReader(body)
	case "application/x-ndjson", "application/jsonl", "application/jsonlines":
		r.src = stream.NewJSONLReader(body)
	default:
		data, err := io.ReadAll(body)
		if err != nil {
			_ = body.Close()
			return nil, fmt.Errorf("read agent runtime response: %w", err)
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			r.src = stream.NewSliceReader()
		} else {
			r.src = stream.NewSliceReader(trace.Record{Raw: data})
		}
	}
	return r, nil
}

// Next implements trace.Source.
func (r *ResponseReader) Next(ctx context.Context) (trace.Record, error) {
	rec, err := r.src.Next(ctx)
	if err != nil || rec.Raw == nil {
		return rec, err
	}
	return normalize(rec.Raw), nil
}

// Close releases the response body. It is safe to call more than once.
func (r *ResponseReader) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.body.Close() })
	return r.closeErr
}

func normalize(raw []byte) trace.Record {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		return trace.Record{Raw: raw}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return trace.Record{Event: trace.TextChunk{Text: s}}
	}
	return trace.Record{Event: trace.TextChunk{Text: string(raw)}}
}
