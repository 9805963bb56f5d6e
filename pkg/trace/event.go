// Package trace interprets the event stream returned by a remote agent
// invocation. Each streamed record decodes into exactly one Event variant;
// the Interpreter folds the variants into a Result holding the reply text,
// saved artifacts and the trace entries shown alongside the reply.
package trace

import "context"

// Kind identifies the category of a trace entry.
type Kind string

const (
	KindRationale                 Kind = "rationale"
	KindCodeInterpreter           Kind = "codeInterpreter"
	KindKnowledgeBaseLookup       Kind = "knowledgeBaseLookup"
	KindActionGroupInvocation     Kind = "actionGroupInvocation"
	KindObservation               Kind = "observation"
	KindKnowledgeBaseLookupOutput Kind = "knowledgeBaseLookupOutput"
	KindFinalResponse             Kind = "finalResponse"
)

// Event is one decoded record of an agent response stream.
// The set of implementations is closed; see the variant types below.
type Event interface {
	isEvent()
}

// Rationale is the model's reasoning for its next step.
type Rationale struct {
	Text string
}

// CodeInterpreterInvocation is code submitted to the code interpreter.
type CodeInterpreterInvocation struct {
	Code string
}

// KnowledgeBaseLookup is a query sent to a knowledge base.
type KnowledgeBaseLookup struct {
	KnowledgeBaseID string
	Text            string
}

// Parameter is one named argument of an action-group call.
type Parameter struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// ActionGroupInvocation is a call to an action-group function.
type ActionGroupInvocation struct {
	ActionGroup string
	Function    string
	Parameters  []Parameter
}

// CodeInterpreterOutput is the result of running code in the interpreter.
// Failed is set when the remote reported an execution error; Error then
// holds the error text.
type CodeInterpreterOutput struct {
	Output string
	Error  string
	Failed bool
}

// Reference is one document returned by a knowledge-base lookup.
type Reference struct {
	URI  string `json:"uri,omitempty"`
	Text string `json:"text,omitempty"`
}

// KnowledgeBaseLookupOutput lists the references retrieved by a lookup.
type KnowledgeBaseLookupOutput struct {
	References []Reference
}

// ActionGroupOutput is the text returned by an action-group function.
type ActionGroupOutput struct {
	Text string
}

// FinalResponse is the agent's final answer as reported in the trace.
type FinalResponse struct {
	Text string
}

// GuardrailBlock is a single blocked filter or topic.
type GuardrailBlock struct {
	Topic      bool
	Name       string // topic name, or content filter type
	Confidence string // content filters only
}

// GuardrailAssessment carries the blocking decisions of a guardrail check.
// Assessments with no blocked filter or topic have an empty Blocks slice.
type GuardrailAssessment struct {
	Blocks []GuardrailBlock
}

// TextChunk is a piece of the reply text.
type TextChunk struct {
	Text string
}

// File is one file attached to the response.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// FileOutput carries files produced by the agent (charts, CSVs, ...).
type FileOutput struct {
	Files []File
}

// Unknown is a record whose shape matched none of the known variants.
// Shape names the outermost keys that were inspected, e.g.
// "trace.preProcessingTrace".
type Unknown struct {
	Shape string
}

func (Rationale) isEvent()                 {}
func (CodeInterpreterInvocation) isEvent() {}
func (KnowledgeBaseLookup) isEvent()       {}
func (ActionGroupInvocation) isEvent()     {}
func (CodeInterpreterOutput) isEvent()     {}
func (KnowledgeBaseLookupOutput) isEvent() {}
func (ActionGroupOutput) isEvent()         {}
func (FinalResponse) isEvent()             {}
func (GuardrailAssessment) isEvent()       {}
func (TextChunk) isEvent()                 {}
func (FileOutput) isEvent()                {}
func (Unknown) isEvent()                   {}

// Entry is one displayable trace step.
type Entry struct {
	Kind       Kind        `json:"trace_type"`
	Text       string      `json:"text"`
	IsError    bool        `json:"is_error,omitempty"`
	References []Reference `json:"references,omitempty"`
}

// Record is one unit delivered by a Source. Transports that already speak
// typed events set Event; transports that deliver JSON set Raw and leave
// decoding to the Interpreter. A transport that received a record it could
// not convert sets Err; the Interpreter skips it like a malformed record.
type Record struct {
	Raw   []byte
	Event Event
	Err   error
}

// Source delivers the records of one agent response in order.
// Next returns io.EOF once the stream is exhausted; any other error is
// terminal.
type Source interface {
	Next(ctx context.Context) (Record, error)
}
