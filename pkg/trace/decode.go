package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingField reports that a recognised event branch lacks a field it
// must carry.
var ErrMissingField = errors.New("missing required field")

// DecodeError describes a record that could not be decoded. Path is the
// dotted key path where decoding failed.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode event: %v", e.Err)
	}
	return fmt.Sprintf("decode event: %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func missing(path string) error {
	return &DecodeError{Path: path, Err: ErrMissingField}
}

type object map[string]json.RawMessage

func (o object) has(key string) bool {
	_, ok := o[key]
	return ok
}

func decodeObject(raw json.RawMessage, path string) (object, error) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if o == nil {
		return nil, &DecodeError{Path: path, Err: errors.New("expected object, got null")}
	}
	return o, nil
}

func decodeInto(raw json.RawMessage, path string, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

// shape names an unrecognised object by its sorted keys.
func shape(prefix string, o object) string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	name := strings.Join(keys, ",")
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "." + name
}

// Decode classifies one JSON event record.
//
// Branches are checked in a fixed priority and only the first match is
// decoded. A recognised branch with missing fields is a *DecodeError;
// a record that matches no branch decodes to Unknown.
func Decode(raw []byte) (Event, error) {
	top, err := decodeObject(raw, "")
	if err != nil {
		return nil, err
	}
	switch {
	case top.has("trace"):
		return decodeTracePart(top["trace"])
	case top.has("chunk"):
		return decodeChunk(top["chunk"])
	case top.has("files"):
		return decodeFilePart(top["files"])
	}
	return Unknown{Shape: shape("", top)}, nil
}

func decodeTracePart(raw json.RawMessage) (Event, error) {
	part, err := decodeObject(raw, "trace")
	if err != nil {
		return nil, err
	}
	if !part.has("trace") {
		return Unknown{Shape: "trace"}, nil
	}
	inner, err := decodeObject(part["trace"], "trace.trace")
	if err != nil {
		return nil, err
	}
	switch {
	case inner.has("orchestrationTrace"):
		return decodeOrchestration(inner["orchestrationTrace"])
	case inner.has("guardrailTrace"):
		return decodeGuardrail(inner["guardrailTrace"])
	}
	return Unknown{Shape: shape("trace", inner)}, nil
}

func decodeOrchestration(raw json.RawMessage) (Event, error) {
	const path = "trace.orchestrationTrace"
	o, err := decodeObject(raw, path)
	if err != nil {
		return nil, err
	}
	switch {
	case o.has("rationale"):
		var r struct {
			Text *string `json:"text"`
		}
		if err := decodeInto(o["rationale"], path+".rationale", &r); err != nil {
			return nil, err
		}
		if r.Text == nil {
			return nil, missing(path + ".rationale.text")
		}
		return Rationale{Text: *r.Text}, nil
	case o.has("invocationInput"):
		return decodeInvocationInput(o["invocationInput"])
	case o.has("observation"):
		return decodeObservation(o["observation"])
	}
	return Unknown{Shape: shape(path, o)}, nil
}

func decodeInvocationInput(raw json.RawMessage) (Event, error) {
	const path = "trace.orchestrationTrace.invocationInput"
	o, err := decodeObject(raw, path)
	if err != nil {
		return nil, err
	}
	switch {
	case o.has("codeInterpreterInvocationInput"):
		var in struct {
			Code *string `json:"code"`
		}
		p := path + ".codeInterpreterInvocationInput"
		if err := decodeInto(o["codeInterpreterInvocationInput"], p, &in); err != nil {
			return nil, err
		}
		if in.Code == nil {
			return nil, missing(p + ".code")
		}
		return CodeInterpreterInvocation{Code: *in.Code}, nil
	case o.has("knowledgeBaseLookupInput"):
		var in struct {
			KnowledgeBaseID string  `json:"knowledgeBaseId"`
			Text            *string `json:"text"`
		}
		p := path + ".knowledgeBaseLookupInput"
		if err := decodeInto(o["knowledgeBaseLookupInput"], p, &in); err != nil {
			return nil, err
		}
		if in.Text == nil {
			return nil, missing(p + ".text")
		}
		return KnowledgeBaseLookup{KnowledgeBaseID: in.KnowledgeBaseID, Text: *in.Text}, nil
	case o.has("actionGroupInvocationInput"):
		var in struct {
			ActionGroupName string      `json:"actionGroupName"`
			Function        *string     `json:"function"`
			Parameters      []Parameter `json:"parameters"`
		}
		p := path + ".actionGroupInvocationInput"
		if err := decodeInto(o["actionGroupInvocationInput"], p, &in); err != nil {
			return nil, err
		}
		if in.Function == nil {
			return nil, missing(p + ".function")
		}
		return ActionGroupInvocation{
			ActionGroup: in.ActionGroupName,
			Function:    *in.Function,
			Parameters:  in.Parameters,
		}, nil
	}
	return Unknown{Shape: shape(path, o)}, nil
}

func decodeObservation(raw json.RawMessage) (Event, error) {
	const path = "trace.orchestrationTrace.observation"
	o, err := decodeObject(raw, path)
	if err != nil {
		return nil, err
	}
	switch {
	case o.has("codeInterpreterInvocationOutput"):
		var out struct {
			ExecutionOutput *string `json:"executionOutput"`
			ExecutionError  *string `json:"executionError"`
		}
		p := path + ".codeInterpreterInvocationOutput"
		if err := decodeInto(o["codeInterpreterInvocationOutput"], p, &out); err != nil {
			return nil, err
		}
		switch {
		case out.ExecutionOutput != nil:
			return CodeInterpreterOutput{Output: *out.ExecutionOutput}, nil
		case out.ExecutionError != nil:
			return CodeInterpreterOutput{Error: *out.ExecutionError, Failed: true}, nil
		}
		return Unknown{Shape: p}, nil
	case o.has("knowledgeBaseLookupOutput"):
		var out struct {
			RetrievedReferences *[]wireReference `json:"retrievedReferences"`
		}
		p := path + ".knowledgeBaseLookupOutput"
		if err := decodeInto(o["knowledgeBaseLookupOutput"], p, &out); err != nil {
			return nil, err
		}
		if out.RetrievedReferences == nil {
			return nil, missing(p + ".retrievedReferences")
		}
		refs := make([]Reference, 0, len(*out.RetrievedReferences))
		for _, r := range *out.RetrievedReferences {
			refs = append(refs, r.reference())
		}
		return KnowledgeBaseLookupOutput{References: refs}, nil
	case o.has("actionGroupInvocationOutput"):
		var out struct {
			Text *string `json:"text"`
		}
		p := path + ".actionGroupInvocationOutput"
		if err := decodeInto(o["actionGroupInvocationOutput"], p, &out); err != nil {
			return nil, err
		}
		if out.Text == nil {
			return nil, missing(p + ".text")
		}
		return ActionGroupOutput{Text: *out.Text}, nil
	case o.has("finalResponse"):
		var out struct {
			Text *string `json:"text"`
		}
		p := path + ".finalResponse"
		if err := decodeInto(o["finalResponse"], p, &out); err != nil {
			return nil, err
		}
		if out.Text == nil {
			return nil, missing(p + ".text")
		}
		return FinalResponse{Text: *out.Text}, nil
	}
	return Unknown{Shape: shape(path, o)}, nil
}

type wireReference struct {
	Content *struct {
		Text string `json:"text"`
	} `json:"content"`
	Location *struct {
		S3Location *struct {
			URI string `json:"uri"`
		} `json:"s3Location"`
	} `json:"location"`
}

func (w wireReference) reference() Reference {
	var r Reference
	if w.Content != nil {
		r.Text = w.Content.Text
	}
	if w.Location != nil && w.Location.S3Location != nil {
		r.URI = w.Location.S3Location.URI
	}
	return r
}

type wireAssessment struct {
	ContentPolicy *struct {
		Filters *[]struct {
			Type       string  `json:"type"`
			Confidence string  `json:"confidence"`
			Action     *string `json:"action"`
		} `json:"filters"`
	} `json:"contentPolicy"`
	TopicPolicy *struct {
		Topics *[]struct {
			Name   string  `json:"name"`
			Action *string `json:"action"`
		} `json:"topics"`
	} `json:"topicPolicy"`
}

// blockedAction is the guardrail action value that produces a warning.
const blockedAction = "BLOCKED"

func decodeGuardrail(raw json.RawMessage) (Event, error) {
	const path = "trace.guardrailTrace"
	var g struct {
		InputAssessments  []wireAssessment `json:"inputAssessments"`
		OutputAssessments []wireAssessment `json:"outputAssessments"`
	}
	if err := decodeInto(raw, path, &g); err != nil {
		return nil, err
	}
	var blocks []GuardrailBlock
	assessments := append(append([]wireAssessment{}, g.InputAssessments...), g.OutputAssessments...)
	for i, a := range assessments {
		p := fmt.Sprintf("%s.assessments[%d]", path, i)
		if a.ContentPolicy != nil {
			if a.ContentPolicy.Filters == nil {
				return nil, missing(p + ".contentPolicy.filters")
			}
			for j, f := range *a.ContentPolicy.Filters {
				if f.Action == nil {
					return nil, missing(fmt.Sprintf("%s.contentPolicy.filters[%d].action", p, j))
				}
				if *f.Action == blockedAction {
					blocks = append(blocks, GuardrailBlock{Name: f.Type, Confidence: f.Confidence})
				}
			}
		}
		if a.TopicPolicy != nil {
			if a.TopicPolicy.Topics == nil {
				return nil, missing(p + ".topicPolicy.topics")
			}
			for j, t := range *a.TopicPolicy.Topics {
				if t.Action == nil {
					return nil, missing(fmt.Sprintf("%s.topicPolicy.topics[%d].action", p, j))
				}
				if *t.Action == blockedAction {
					blocks = append(blocks, GuardrailBlock{Topic: true, Name: t.Name})
				}
			}
		}
	}
	return GuardrailAssessment{Blocks: blocks}, nil
}

func decodeChunk(raw json.RawMessage) (Event, error) {
	o, err := decodeObject(raw, "chunk")
	if err != nil {
		return nil, err
	}
	if !o.has("bytes") {
		return Unknown{Shape: shape("chunk", o)}, nil
	}
	var data []byte
	if err := decodeInto(o["bytes"], "chunk.bytes", &data); err != nil {
		return nil, err
	}
	return TextChunk{Text: string(data)}, nil
}

func decodeFilePart(raw json.RawMessage) (Event, error) {
	var part struct {
		Files *[]struct {
			Name  *string `json:"name"`
			Type  *string `json:"type"`
			Bytes []byte  `json:"bytes"`
		} `json:"files"`
	}
	if err := decodeInto(raw, "files", &part); err != nil {
		return nil, err
	}
	if part.Files == nil {
		return nil, missing("files.files")
	}
	files := make([]File, 0, len(*part.Files))
	for i, f := range *part.Files {
		p := fmt.Sprintf("files.files[%d]", i)
		switch {
		case f.Name == nil:
			return nil, missing(p + ".name")
		case f.Type == nil:
			return nil, missing(p + ".type")
		case f.Bytes == nil:
			return nil, missing(p + ".bytes")
		}
		files = append(files, File{Name: *f.Name, MIMEType: *f.Type, Data: f.Bytes})
	}
	return FileOutput{Files: files}, nil
}
