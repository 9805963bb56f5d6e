// Package bedrock invokes an Amazon Bedrock agent and exposes its response
// event stream as a trace.Source.
package bedrock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/ravi-parthasarathy/agenttrace/pkg/agent"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

// DefaultAliasID is the alias Bedrock assigns to an agent's working draft.
const DefaultAliasID = "TSTALIASID"

// AgentAPI is the subset of the Bedrock agent runtime client used here.
type AgentAPI interface {
	InvokeAgent(ctx context.Context, in *bedrockagentruntime.InvokeAgentInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.InvokeAgentOutput, error)
}

// Invoker calls one agent alias. It implements agent.Invoker.
type Invoker struct {
	client  AgentAPI
	agentID string
	aliasID string
}

// NewInvoker returns an Invoker for agentID. An empty aliasID uses
// DefaultAliasID.
func NewInvoker(client AgentAPI, agentID, aliasID string) *Invoker {
	if aliasID == "" {
		aliasID = DefaultAliasID
	}
	return &Invoker{client: client, agentID: agentID, aliasID: aliasID}
}

// NewInvokerFromConfig loads the AWS default configuration for region (empty
// keeps the configured default) and builds an Invoker on it.
func NewInvokerFromConfig(ctx context.Context, region, agentID, aliasID string) (*Invoker, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewInvoker(bedrockagentruntime.NewFromConfig(cfg), agentID, aliasID), nil
}

// Invoke implements agent.Invoker. Tracing is always enabled so the
// response carries the agent's reasoning steps.
func (i *Invoker) Invoke(ctx context.Context, req agent.Request) (trace.Source, error) {
	if i.agentID == "" {
		return nil, fmt.Errorf("invoke agent: agent id not configured")
	}
	in := &bedrockagentruntime.InvokeAgentInput{
		AgentId:      aws.String(i.agentID),
		AgentAliasId: aws.String(i.aliasID),
		SessionId:    aws.String(req.SessionID),
		InputText:    aws.String(req.InputText),
		EnableTrace:  aws.Bool(true),
		EndSession:   aws.Bool(req.EndSession),
	}
	out, err := i.client.InvokeAgent(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("invoke agent %s/%s: %w", i.agentID, i.aliasID, err)
	}
	slog.Debug("agent invoked", "agent", i.agentID, "alias", i.aliasID, "session", req.SessionID)
	es := out.GetStream()
	return newEventReader(es.Events(), es.Err, es.Close), nil
}

// EventReader adapts a Bedrock response event channel to trace.Source.
type EventReader struct {
	events    <-chan types.ResponseStream
	errFn     func() error
	closeFn   func() error
	closeOnce sync.Once
	closeErr  error
}

func newEventReader(events <-chan types.ResponseStream, errFn, closeFn func() error) *EventReader {
	return &EventReader{events: events, errFn: errFn, closeFn: closeFn}
}

// Next implements trace.Source. Events the converter cannot map carry the
// conversion error in Record.Err.
func (r *EventReader) Next(ctx context.Context) (trace.Record, error) {
	select {
	case <-ctx.Done():
		return trace.Record{}, ctx.Err()
	case ev, ok := <-r.events:
		if !ok {
			if err := r.errFn(); err != nil {
				return trace.Record{}, fmt.Errorf("agent event stream: %w", err)
			}
			return trace.Record{}, io.EOF
		}
		te, err := Convert(ev)
		if err != nil {
			return trace.Record{Err: err}, nil
		}
		return trace.Record{Event: te}, nil
	}
}

// Close releases the underlying stream. It is safe to call more than once.
func (r *EventReader) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.closeFn() })
	return r.closeErr
}
