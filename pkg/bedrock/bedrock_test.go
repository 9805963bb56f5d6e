package bedrock

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/google/go-cmp/cmp"

	"github.com/ravi-parthasarathy/agenttrace/pkg/agent"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

func orchestration(o types.OrchestrationTrace) types.ResponseStream {
	return &types.ResponseStreamMemberTrace{Value: types.TracePart{
		Trace: &types.TraceMemberOrchestrationTrace{Value: o},
	}}
}

// ─── conversion ──────────────────────────────────────────────────────────────

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		in   types.ResponseStream
		want trace.Event
	}{
		{
			"chunk",
			&types.ResponseStreamMemberChunk{Value: types.PayloadPart{Bytes: []byte("done")}},
			trace.TextChunk{Text: "done"},
		},
		{
			"rationale",
			orchestration(&types.OrchestrationTraceMemberRationale{Value: types.Rationale{Text: aws.String("plan")}}),
			trace.Rationale{Text: "plan"},
		},
		{
			"code interpreter input",
			orchestration(&types.OrchestrationTraceMemberInvocationInput{Value: types.InvocationInput{
				CodeInterpreterInvocationInput: &types.CodeInterpreterInvocationInput{Code: aws.String("print(2)")},
			}}),
			trace.CodeInterpreterInvocation{Code: "print(2)"},
		},
		{
			"action group input",
			orchestration(&types.OrchestrationTraceMemberInvocationInput{Value: types.InvocationInput{
				ActionGroupInvocationInput: &types.ActionGroupInvocationInput{
					ActionGroupName: aws.String("tools"),
					Function:        aws.String("count_csv_rows"),
					Parameters:      []types.Parameter{{Name: aws.String("key"), Type: aws.String("string"), Value: aws.String("a.csv")}},
				},
			}}),
			trace.ActionGroupInvocation{
				ActionGroup: "tools",
				Function:    "count_csv_rows",
				Parameters:  []trace.Parameter{{Name: "key", Type: "string", Value: "a.csv"}},
			},
		},
		{
			"execution error",
			orchestration(&types.OrchestrationTraceMemberObservation{Value: types.Observation{
				CodeInterpreterInvocationOutput: &types.CodeInterpreterInvocationOutput{ExecutionError: aws.String("boom")},
			}}),
			trace.CodeInterpreterOutput{Error: "boom", Failed: true},
		},
		{
			"knowledge base output",
			orchestration(&types.OrchestrationTraceMemberObservation{Value: types.Observation{
				KnowledgeBaseLookupOutput: &types.KnowledgeBaseLookupOutput{
					RetrievedReferences: []types.RetrievedReference{{
						Content:  &types.RetrievalResultContent{Text: aws.String("Use MFA.")},
						Location: &types.RetrievalResultLocation{S3Location: &types.RetrievalResultS3Location{Uri: aws.String("s3://kb/mfa.md")}},
					}},
				},
			}}),
			trace.KnowledgeBaseLookupOutput{References: []trace.Reference{{URI: "s3://kb/mfa.md", Text: "Use MFA."}}},
		},
		{
			"final response",
			orchestration(&types.OrchestrationTraceMemberObservation{Value: types.Observation{
				FinalResponse: &types.FinalResponse{Text: aws.String("bye")},
			}}),
			trace.FinalResponse{Text: "bye"},
		},
		{
			"guardrail",
			&types.ResponseStreamMemberTrace{Value: types.TracePart{Trace: &types.TraceMemberGuardrailTrace{
				Value: types.GuardrailTrace{InputAssessments: []types.GuardrailAssessment{{
					ContentPolicy: &types.GuardrailContentPolicyAssessment{Filters: []types.GuardrailContentFilter{
						{Type: types.GuardrailContentFilterTypeViolence, Confidence: types.GuardrailContentFilterConfidenceHigh, Action: types.GuardrailContentPolicyActionBlocked},
					}},
					TopicPolicy: &types.GuardrailTopicPolicyAssessment{Topics: []types.GuardrailTopic{
						{Name: aws.String("Stocks"), Action: types.GuardrailTopicPolicyActionBlocked},
					}},
				}}},
			}}},
			trace.GuardrailAssessment{Blocks: []trace.GuardrailBlock{
				{Name: "VIOLENCE", Confidence: "HIGH"},
				{Topic: true, Name: "Stocks"},
			}},
		},
		{
			"files",
			&types.ResponseStreamMemberFiles{Value: types.FilePart{Files: []types.OutputFile{
				{Name: aws.String("chart.png"), Type: aws.String("image/png"), Bytes: []byte{1}},
			}}},
			trace.FileOutput{Files: []trace.File{{Name: "chart.png", MIMEType: "image/png", Data: []byte{1}}}},
		},
		{
			"model invocation input",
			orchestration(&types.OrchestrationTraceMemberModelInvocationInput{}),
			trace.Unknown{Shape: "trace.orchestrationTrace.modelInvocationInput"},
		},
		{
			"pre-processing",
			&types.ResponseStreamMemberTrace{Value: types.TracePart{Trace: &types.TraceMemberPreProcessingTrace{}}},
			trace.Unknown{Shape: "trace.preProcessingTrace"},
		},
		{
			"return control",
			&types.ResponseStreamMemberReturnControl{},
			trace.Unknown{Shape: "returnControl"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.in)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Convert mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvert_MissingField(t *testing.T) {
	_, err := Convert(orchestration(&types.OrchestrationTraceMemberRationale{}))
	if !errors.Is(err, trace.ErrMissingField) {
		t.Errorf("err = %v, want ErrMissingField", err)
	}
	_, err = Convert(&types.ResponseStreamMemberFiles{Value: types.FilePart{Files: []types.OutputFile{{Name: aws.String("x")}}}})
	var de *trace.DecodeError
	if !errors.As(err, &de) || de.Path != "files.files[0].type" {
		t.Errorf("err = %v", err)
	}
}

// ─── event reader ────────────────────────────────────────────────────────────

func TestEventReader(t *testing.T) {
	ch := make(chan types.ResponseStream, 3)
	ch <- orchestration(&types.OrchestrationTraceMemberRationale{})
	ch <- &types.ResponseStreamMemberChunk{Value: types.PayloadPart{Bytes: []byte("hi")}}
	close(ch)
	closed := 0
	r := newEventReader(ch, func() error { return nil }, func() error { closed++; return nil })
	ctx := context.Background()

	rec, err := r.Next(ctx)
	if err != nil || rec.Err == nil {
		t.Fatalf("first record = %+v, %v; want conversion error", rec, err)
	}
	rec, err = r.Next(ctx)
	if err != nil || rec.Event != (trace.TextChunk{Text: "hi"}) {
		t.Fatalf("second record = %+v, %v", rec, err)
	}
	if _, err := r.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
	_ = r.Close()
	_ = r.Close()
	if closed != 1 {
		t.Errorf("close called %d times", closed)
	}
}

func TestEventReader_StreamError(t *testing.T) {
	ch := make(chan types.ResponseStream)
	close(ch)
	throttled := errors.New("throttlingException")
	r := newEventReader(ch, func() error { return throttled }, func() error { return nil })
	if _, err := r.Next(context.Background()); !errors.Is(err, throttled) {
		t.Errorf("err = %v, want %v", err, throttled)
	}
}

func TestEventReader_Cancelled(t *testing.T) {
	r := newEventReader(make(chan types.ResponseStream), func() error { return nil }, func() error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

// ─── invoker ─────────────────────────────────────────────────────────────────

type captureAPI struct {
	in  *bedrockagentruntime.InvokeAgentInput
	err error
}

func (c *captureAPI) InvokeAgent(_ context.Context, in *bedrockagentruntime.InvokeAgentInput, _ ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.InvokeAgentOutput, error) {
	c.in = in
	return nil, c.err
}

func TestInvoker_Input(t *testing.T) {
	api := &captureAPI{err: errors.New("denied")}
	inv := NewInvoker(api, "AGENT1", "")
	_, err := inv.Invoke(context.Background(), agent.Request{SessionID: "123456789012345", InputText: "hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	in := api.in
	if in == nil {
		t.Fatal("InvokeAgent not called")
	}
	got := []string{aws.ToString(in.AgentId), aws.ToString(in.AgentAliasId), aws.ToString(in.SessionId), aws.ToString(in.InputText)}
	want := []string{"AGENT1", DefaultAliasID, "123456789012345", "hello"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("input mismatch (-want +got):\n%s", diff)
	}
	if !aws.ToBool(in.EnableTrace) || aws.ToBool(in.EndSession) {
		t.Errorf("EnableTrace=%v EndSession=%v", aws.ToBool(in.EnableTrace), aws.ToBool(in.EndSession))
	}
}

func TestInvoker_NoAgentID(t *testing.T) {
	api := &captureAPI{}
	if _, err := NewInvoker(api, "", "").Invoke(context.Background(), agent.Request{}); err == nil {
		t.Fatal("expected error")
	}
	if api.in != nil {
		t.Error("InvokeAgent should not be called without an agent id")
	}
}

var _ agent.Invoker = (*Invoker)(nil)
