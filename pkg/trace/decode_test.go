package trace_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func chunkJSON(text string) string {
	return fmt.Sprintf(`{"chunk":{"bytes":%q}}`, b64(text))
}

func orchestration(body string) string {
	return `{"trace":{"agentId":"A","trace":{"orchestrationTrace":` + body + `}}}`
}

func TestDecode_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want trace.Event
	}{
		{
			"rationale",
			orchestration(`{"rationale":{"text":"I should plot the data","traceId":"t1"}}`),
			trace.Rationale{Text: "I should plot the data"},
		},
		{
			"code interpreter input",
			orchestration(`{"invocationInput":{"invocationType":"ACTION_GROUP_CODE_INTERPRETER","codeInterpreterInvocationInput":{"code":"print(1)"}}}`),
			trace.CodeInterpreterInvocation{Code: "print(1)"},
		},
		{
			"knowledge base input",
			orchestration(`{"invocationInput":{"knowledgeBaseLookupInput":{"knowledgeBaseId":"KB1","text":"security best practices"}}}`),
			trace.KnowledgeBaseLookup{KnowledgeBaseID: "KB1", Text: "security best practices"},
		},
		{
			"action group input",
			orchestration(`{"invocationInput":{"actionGroupInvocationInput":{"actionGroupName":"tools","function":"generate_diagram","parameters":[{"name":"query","type":"string","value":"ecommerce"}]}}}`),
			trace.ActionGroupInvocation{
				ActionGroup: "tools",
				Function:    "generate_diagram",
				Parameters:  []trace.Parameter{{Name: "query", Type: "string", Value: "ecommerce"}},
			},
		},
		{
			"code interpreter output",
			orchestration(`{"observation":{"codeInterpreterInvocationOutput":{"executionOutput":"42\n"}}}`),
			trace.CodeInterpreterOutput{Output: "42\n"},
		},
		{
			"code interpreter error",
			orchestration(`{"observation":{"codeInterpreterInvocationOutput":{"executionError":"NameError: x"}}}`),
			trace.CodeInterpreterOutput{Error: "NameError: x", Failed: true},
		},
		{
			"code interpreter output wins over error",
			orchestration(`{"observation":{"codeInterpreterInvocationOutput":{"executionOutput":"ok","executionError":"warn"}}}`),
			trace.CodeInterpreterOutput{Output: "ok"},
		},
		{
			"knowledge base output",
			orchestration(`{"observation":{"knowledgeBaseLookupOutput":{"retrievedReferences":[{"content":{"text":"Use IAM roles."},"location":{"s3Location":{"uri":"s3://docs/iam.pdf"}}},{"content":{"text":"bare"}}]}}}`),
			trace.KnowledgeBaseLookupOutput{References: []trace.Reference{
				{URI: "s3://docs/iam.pdf", Text: "Use IAM roles."},
				{Text: "bare"},
			}},
		},
		{
			"action group output",
			orchestration(`{"observation":{"actionGroupInvocationOutput":{"text":"{'image_url': 'u'}"}}}`),
			trace.ActionGroupOutput{Text: "{'image_url': 'u'}"},
		},
		{
			"final response",
			orchestration(`{"observation":{"type":"FINISH","finalResponse":{"text":"All done."}}}`),
			trace.FinalResponse{Text: "All done."},
		},
		{
			"rationale wins over observation",
			orchestration(`{"rationale":{"text":"r"},"observation":{"finalResponse":{"text":"f"}}}`),
			trace.Rationale{Text: "r"},
		},
		{
			"text chunk",
			chunkJSON("Hello"),
			trace.TextChunk{Text: "Hello"},
		},
		{
			"files",
			fmt.Sprintf(`{"files":{"files":[{"name":"data.csv","type":"text/csv","bytes":%q}]}}`, b64("a,b\n")),
			trace.FileOutput{Files: []trace.File{{Name: "data.csv", MIMEType: "text/csv", Data: []byte("a,b\n")}}},
		},
		{
			"guardrail blocked",
			`{"trace":{"trace":{"guardrailTrace":{"action":"INTERVENED","inputAssessments":[{"contentPolicy":{"filters":[{"type":"VIOLENCE","confidence":"HIGH","action":"BLOCKED"},{"type":"INSULTS","confidence":"LOW","action":"NONE"}]},"topicPolicy":{"topics":[{"name":"Investment advice","type":"DENY","action":"BLOCKED"}]}}],"outputAssessments":[{"contentPolicy":{"filters":[{"type":"HATE","confidence":"MEDIUM","action":"BLOCKED"}]}}]}}}}`,
			trace.GuardrailAssessment{Blocks: []trace.GuardrailBlock{
				{Name: "VIOLENCE", Confidence: "HIGH"},
				{Topic: true, Name: "Investment advice"},
				{Name: "HATE", Confidence: "MEDIUM"},
			}},
		},
		{
			"guardrail passed",
			`{"trace":{"trace":{"guardrailTrace":{"action":"NONE","inputAssessments":[{}]}}}}`,
			trace.GuardrailAssessment{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := trace.Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_Unknown(t *testing.T) {
	tests := []struct {
		raw   string
		shape string
	}{
		{`{"returnControl":{"invocationId":"x"}}`, "returnControl"},
		{`{"trace":{"agentId":"A"}}`, "trace"},
		{`{"trace":{"trace":{"preProcessingTrace":{}}}}`, "trace.preProcessingTrace"},
		{orchestration(`{"modelInvocationInput":{"text":"..."}}`), "trace.orchestrationTrace.modelInvocationInput"},
		{orchestration(`{"invocationInput":{"invocationType":"AGENT_COLLABORATOR"}}`), "trace.orchestrationTrace.invocationInput.invocationType"},
		{orchestration(`{"observation":{"codeInterpreterInvocationOutput":{"files":["a.png"]}}}`), "trace.orchestrationTrace.observation.codeInterpreterInvocationOutput"},
		{`{"chunk":{"attribution":{}}}`, "chunk.attribution"},
	}
	for _, tt := range tests {
		t.Run(tt.shape, func(t *testing.T) {
			got, err := trace.Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(trace.Event(trace.Unknown{Shape: tt.shape}), got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_MissingField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		path string
	}{
		{"rationale text", orchestration(`{"rationale":{}}`), "trace.orchestrationTrace.rationale.text"},
		{"code", orchestration(`{"invocationInput":{"codeInterpreterInvocationInput":{}}}`), "trace.orchestrationTrace.invocationInput.codeInterpreterInvocationInput.code"},
		{"function", orchestration(`{"invocationInput":{"actionGroupInvocationInput":{"actionGroupName":"g"}}}`), "trace.orchestrationTrace.invocationInput.actionGroupInvocationInput.function"},
		{"references", orchestration(`{"observation":{"knowledgeBaseLookupOutput":{}}}`), "trace.orchestrationTrace.observation.knowledgeBaseLookupOutput.retrievedReferences"},
		{"final text", orchestration(`{"observation":{"finalResponse":{}}}`), "trace.orchestrationTrace.observation.finalResponse.text"},
		{"files list", `{"files":{}}`, "files.files"},
		{"file bytes", `{"files":{"files":[{"name":"a","type":"text/plain"}]}}`, "files.files[0].bytes"},
		{"guardrail filters", `{"trace":{"trace":{"guardrailTrace":{"inputAssessments":[{"contentPolicy":{}}]}}}}`, "trace.guardrailTrace.assessments[0].contentPolicy.filters"},
		{"topic action", `{"trace":{"trace":{"guardrailTrace":{"inputAssessments":[{"topicPolicy":{"topics":[{"name":"x"}]}}]}}}}`, "trace.guardrailTrace.assessments[0].topicPolicy.topics[0].action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trace.Decode([]byte(tt.raw))
			var de *trace.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *trace.DecodeError, got %T: %v", err, err)
			}
			if !errors.Is(err, trace.ErrMissingField) {
				t.Errorf("expected ErrMissingField, got %v", err)
			}
			if de.Path != tt.path {
				t.Errorf("path = %q, want %q", de.Path, tt.path)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`null`,
		`{"chunk":{"bytes":"***"}}`,
		`{"trace":{"trace":{"orchestrationTrace":"oops"}}}`,
		orchestration(`{"rationale":{"text":7}}`),
	} {
		if _, err := trace.Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%s): expected error", raw)
		}
	}
}

func TestEntryFor(t *testing.T) {
	tests := []struct {
		ev   trace.Event
		want trace.Entry
		ok   bool
	}{
		{trace.Rationale{Text: "why"}, trace.Entry{Kind: trace.KindRationale, Text: "why"}, true},
		{trace.CodeInterpreterInvocation{Code: "x=1"}, trace.Entry{Kind: trace.KindCodeInterpreter, Text: "x=1"}, true},
		{trace.KnowledgeBaseLookup{Text: "q"}, trace.Entry{Kind: trace.KindKnowledgeBaseLookup, Text: "q"}, true},
		{trace.ActionGroupInvocation{Function: "f"}, trace.Entry{Kind: trace.KindActionGroupInvocation, Text: "f"}, true},
		{trace.CodeInterpreterOutput{Output: "out"}, trace.Entry{Kind: trace.KindObservation, Text: "out"}, true},
		{trace.CodeInterpreterOutput{Error: "boom", Failed: true}, trace.Entry{Kind: trace.KindObservation, Text: "boom", IsError: true}, true},
		{trace.ActionGroupOutput{Text: "t"}, trace.Entry{Kind: trace.KindObservation, Text: "t"}, true},
		{trace.FinalResponse{Text: "fin"}, trace.Entry{Kind: trace.KindFinalResponse, Text: "fin"}, true},
		{
			trace.KnowledgeBaseLookupOutput{References: []trace.Reference{{URI: "s3://a", Text: "A"}, {Text: "B"}}},
			trace.Entry{
				Kind:       trace.KindKnowledgeBaseLookupOutput,
				Text:       "s3://a\n\nA\n\nB",
				References: []trace.Reference{{URI: "s3://a", Text: "A"}, {Text: "B"}},
			},
			true,
		},
		{trace.TextChunk{Text: "x"}, trace.Entry{}, false},
		{trace.FileOutput{}, trace.Entry{}, false},
		{trace.GuardrailAssessment{}, trace.Entry{}, false},
		{trace.Unknown{Shape: "x"}, trace.Entry{}, false},
	}
	for _, tt := range tests {
		got, ok := trace.EntryFor(tt.ev)
		if ok != tt.ok {
			t.Errorf("EntryFor(%T) ok = %v, want %v", tt.ev, ok, tt.ok)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("EntryFor(%T) mismatch (-want +got):\n%s", tt.ev, diff)
		}
	}
}

func TestGuardrailWarnings(t *testing.T) {
	got := trace.GuardrailWarnings(trace.GuardrailAssessment{Blocks: []trace.GuardrailBlock{
		{Name: "VIOLENCE", Confidence: "HIGH"},
		{Topic: true, Name: "Investment advice"},
	}})
	want := []string{
		"Guardrail blocked VIOLENCE confidence: HIGH",
		"Guardrail blocked topic Investment advice",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GuardrailWarnings mismatch (-want +got):\n%s", diff)
	}
}
