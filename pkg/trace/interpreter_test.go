package trace_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/stream"
	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func fileJSON(name, mimeType string, data []byte) string {
	return fmt.Sprintf(`{"files":{"files":[{"name":%q,"type":%q,"bytes":%q}]}}`,
		name, mimeType, b64(string(data)))
}

type fixture struct {
	imageDir string
	fileDir  string
}

func newInterpreter(t *testing.T, opts ...trace.Option) (*trace.Interpreter, fixture) {
	t.Helper()
	fx := fixture{imageDir: t.TempDir(), fileDir: t.TempDir()}
	opts = append([]trace.Option{
		trace.WithImageStore(artifact.NewLocalStore(fx.imageDir)),
		trace.WithFileStore(artifact.NewLocalStore(fx.fileDir)),
	}, opts...)
	return trace.NewInterpreter(opts...), fx
}

// countingSource wraps a source and counts Next calls.
type countingSource struct {
	trace.Source
	calls int
}

func (c *countingSource) Next(ctx context.Context) (trace.Record, error) {
	c.calls++
	return c.Source.Next(ctx)
}

// failingSource delivers recs and then fails.
type failingSource struct {
	recs []trace.Record
	err  error
}

func (f *failingSource) Next(context.Context) (trace.Record, error) {
	if len(f.recs) == 0 {
		return trace.Record{}, f.err
	}
	rec := f.recs[0]
	f.recs = f.recs[1:]
	return rec, nil
}

// ─── classification ──────────────────────────────────────────────────────────

func TestInterpret_RationaleVerbatim(t *testing.T) {
	in, _ := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		orchestration(`{"rationale":{"text":"  I will use the code interpreter.\n"}}`),
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	want := []trace.Entry{{Kind: trace.KindRationale, Text: "  I will use the code interpreter.\n"}}
	if diff := cmp.Diff(want, res.Traces); diff != "" {
		t.Errorf("traces mismatch (-want +got):\n%s", diff)
	}
	if res.Text != "" {
		t.Errorf("text = %q, want empty", res.Text)
	}
}

func TestInterpret_ExecutionErrorIsObservation(t *testing.T) {
	in, _ := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		orchestration(`{"observation":{"codeInterpreterInvocationOutput":{"executionError":"ZeroDivisionError"}}}`),
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	want := []trace.Entry{{Kind: trace.KindObservation, Text: "ZeroDivisionError", IsError: true}}
	if diff := cmp.Diff(want, res.Traces); diff != "" {
		t.Errorf("traces mismatch (-want +got):\n%s", diff)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %+v", res.Diagnostics)
	}
}

func TestInterpret_StopsAtFirstChunk(t *testing.T) {
	in, _ := newInterpreter(t)
	src := &countingSource{Source: stream.FromJSON(
		orchestration(`{"rationale":{"text":"plan"}}`),
		orchestration(`{"observation":{"actionGroupInvocationOutput":{"text":"result"}}}`),
		`{"chunk":{"bytes":"ZG9uZQ=="}}`,
		orchestration(`{"rationale":{"text":"never read"}}`),
	)}
	res, err := in.Interpret(context.Background(), src)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if res.Text != "done" {
		t.Errorf("text = %q, want %q", res.Text, "done")
	}
	want := []trace.Entry{
		{Kind: trace.KindRationale, Text: "plan"},
		{Kind: trace.KindObservation, Text: "result"},
	}
	if diff := cmp.Diff(want, res.Traces); diff != "" {
		t.Errorf("traces mismatch (-want +got):\n%s", diff)
	}
	if src.calls != 3 {
		t.Errorf("Next called %d times, want 3", src.calls)
	}
}

func TestInterpret_FullText(t *testing.T) {
	in, _ := newInterpreter(t, trace.WithFullText())
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		chunkJSON("Hello, "),
		orchestration(`{"observation":{"finalResponse":{"text":"Hello, world"}}}`),
		chunkJSON("world"),
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if res.Text != "Hello, world" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Traces) != 1 || res.Traces[0].Kind != trace.KindFinalResponse {
		t.Errorf("traces = %+v", res.Traces)
	}
}

func TestInterpret_EmptyStream(t *testing.T) {
	in, _ := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON())
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	want := trace.Result{Images: []string{}, Files: []string{}, Traces: []trace.Entry{}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

// ─── files ───────────────────────────────────────────────────────────────────

func TestInterpret_DuplicateImageListedOnce(t *testing.T) {
	in, fx := newInterpreter(t)
	img := pngBytes(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		fileJSON("chart.png", "image/png", img),
		fileJSON("chart.png", "image/png", img),
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	want := []string{filepath.Join(fx.imageDir, "chart.png")}
	if diff := cmp.Diff(want, res.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(want[0])
	if err != nil {
		t.Fatalf("read saved image: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("saved image is not a PNG: %v", err)
	}
}

func TestInterpret_NonImageFileSavedToFileStore(t *testing.T) {
	in, fx := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		fileJSON("report.csv", "text/csv", []byte("a,b\n1,2\n")),
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	path := filepath.Join(fx.fileDir, "report.csv")
	if diff := cmp.Diff([]string{path}, res.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if len(res.Images) != 0 {
		t.Errorf("images = %v, want none", res.Images)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a,b\n1,2\n" {
		t.Errorf("file content = %q", got)
	}
}

func TestInterpret_CorruptImageIsDiagnostic(t *testing.T) {
	in, _ := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		fileJSON("broken.png", "image/png", []byte("not a png")),
		orchestration(`{"rationale":{"text":"still here"}}`),
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(res.Images) != 0 {
		t.Errorf("images = %v, want none", res.Images)
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Index != 0 {
		t.Errorf("diagnostics = %+v", res.Diagnostics)
	}
	if len(res.Traces) != 1 {
		t.Errorf("traces = %+v", res.Traces)
	}
}

// ─── robustness ──────────────────────────────────────────────────────────────

func TestInterpret_MalformedEventSkipped(t *testing.T) {
	in, _ := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		orchestration(`{"rationale":{"text":"first"}}`),
		orchestration(`{"rationale":{}}`),
		orchestration(`{"observation":{"finalResponse":{"text":"second"}}}`),
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(res.Traces) != 2 {
		t.Fatalf("traces = %+v, want 2", res.Traces)
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %+v, want 1", res.Diagnostics)
	}
	d := res.Diagnostics[0]
	if d.Index != 1 {
		t.Errorf("diagnostic index = %d, want 1", d.Index)
	}
	if !errors.Is(d.Err, trace.ErrMissingField) {
		t.Errorf("diagnostic err = %v, want ErrMissingField", d.Err)
	}
}

func TestInterpret_UnknownShapesRecorded(t *testing.T) {
	in, _ := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromJSON(
		`{"trace":{"trace":{"preProcessingTrace":{"modelInvocationInput":{}}}}}`,
		`{"returnControl":{}}`,
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	want := []string{"trace.preProcessingTrace", "returnControl"}
	if diff := cmp.Diff(want, res.Unrecognized); diff != "" {
		t.Errorf("unrecognized mismatch (-want +got):\n%s", diff)
	}
	if len(res.Traces) != 0 || len(res.Diagnostics) != 0 {
		t.Errorf("unexpected output: %+v", res)
	}
}

func TestInterpret_TransportErrorReturnsPartial(t *testing.T) {
	in, _ := newInterpreter(t)
	boom := errors.New("connection reset")
	src := &failingSource{
		recs: []trace.Record{{Event: trace.Rationale{Text: "partial"}}},
		err:  boom,
	}
	res, err := in.Interpret(context.Background(), src)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(res.Traces) != 1 || res.Traces[0].Text != "partial" {
		t.Errorf("partial traces = %+v", res.Traces)
	}
}

func TestInterpret_CancelledContext(t *testing.T) {
	in, _ := newInterpreter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Interpret(ctx, stream.FromEvents(trace.Rationale{Text: "x"}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestInterpret_EOFWrappedIsNotError(t *testing.T) {
	in, _ := newInterpreter(t)
	src := &failingSource{err: fmt.Errorf("stream closed: %w", io.EOF)}
	if _, err := in.Interpret(context.Background(), src); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

// ─── warnings and observer ───────────────────────────────────────────────────

func TestInterpret_GuardrailWarningsNotTraces(t *testing.T) {
	in, _ := newInterpreter(t)
	res, err := in.Interpret(context.Background(), stream.FromEvents(
		trace.GuardrailAssessment{Blocks: []trace.GuardrailBlock{{Name: "VIOLENCE", Confidence: "HIGH"}}},
		trace.TextChunk{Text: "Sorry, I can't help with that."},
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if diff := cmp.Diff([]string{"Guardrail blocked VIOLENCE confidence: HIGH"}, res.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if len(res.Traces) != 0 {
		t.Errorf("traces = %+v, want none", res.Traces)
	}
}

func TestInterpret_ObserverSeesEntriesInOrder(t *testing.T) {
	var got []trace.Notice
	in, _ := newInterpreter(t, trace.WithObserver(func(n trace.Notice) { got = append(got, n) }))
	_, err := in.Interpret(context.Background(), stream.FromEvents(
		trace.Rationale{Text: "a"},
		trace.GuardrailAssessment{Blocks: []trace.GuardrailBlock{{Topic: true, Name: "Stocks"}}},
		trace.FinalResponse{Text: "b"},
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	want := []trace.Notice{
		{Entry: &trace.Entry{Kind: trace.KindRationale, Text: "a"}},
		{Warning: "Guardrail blocked topic Stocks"},
		{Entry: &trace.Entry{Kind: trace.KindFinalResponse, Text: "b"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notices mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpret_RepeatedCallWarning(t *testing.T) {
	call := trace.ActionGroupInvocation{
		ActionGroup: "tools",
		Function:    "website_to_text",
		Parameters:  []trace.Parameter{{Name: "url", Value: "https://example.com"}},
	}
	other := call
	other.Parameters = []trace.Parameter{{Name: "url", Value: "https://example.org"}}

	tests := []struct {
		name      string
		threshold int
		events    []trace.Event
		want      []string
	}{
		{
			name:   "default threshold",
			events: []trace.Event{call, call, other, call, call},
			want:   []string{"agent called website_to_text 3 times with identical parameters"},
		},
		{
			name:      "below threshold",
			threshold: 4,
			events:    []trace.Event{call, call, call},
		},
		{
			name:      "disabled",
			threshold: -1,
			events:    []trace.Event{call, call, call, call},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := newInterpreter(t, trace.WithRepeatThreshold(tt.threshold))
			res, err := in.Interpret(context.Background(), stream.FromEvents(tt.events...))
			if err != nil {
				t.Fatalf("Interpret: %v", err)
			}
			if diff := cmp.Diff(tt.want, res.Warnings, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
			if len(res.Traces) != len(tt.events) {
				t.Errorf("traces = %d, want %d", len(res.Traces), len(tt.events))
			}
		})
	}
}

func TestInterpret_RecordErrorIsDiagnostic(t *testing.T) {
	in, _ := newInterpreter(t)
	bad := &trace.DecodeError{Path: "trace.orchestrationTrace.rationale.text", Err: trace.ErrMissingField}
	res, err := in.Interpret(context.Background(), stream.NewSliceReader(
		trace.Record{Err: bad},
		trace.Record{Event: trace.FinalResponse{Text: "ok"}},
	))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(res.Diagnostics) != 1 || !errors.Is(res.Diagnostics[0].Err, trace.ErrMissingField) {
		t.Errorf("diagnostics = %+v", res.Diagnostics)
	}
	if len(res.Traces) != 1 {
		t.Errorf("traces = %+v", res.Traces)
	}
}
