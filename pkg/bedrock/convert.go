package bedrock

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

// Convert maps one SDK response stream member onto a trace event, using
// the same branch priority as trace.Decode. Required fields that are nil
// produce a *trace.DecodeError; unhandled members become trace.Unknown.
func Convert(ev types.ResponseStream) (trace.Event, error) {
	switch v := ev.(type) {
	case *types.ResponseStreamMemberChunk:
		if v.Value.Bytes == nil {
			return trace.Unknown{Shape: "chunk"}, nil
		}
		return trace.TextChunk{Text: string(v.Value.Bytes)}, nil
	case *types.ResponseStreamMemberTrace:
		return convertTrace(v.Value.Trace)
	case *types.ResponseStreamMemberFiles:
		return convertFiles(v.Value.Files)
	case *types.ResponseStreamMemberReturnControl:
		return trace.Unknown{Shape: "returnControl"}, nil
	}
	return trace.Unknown{Shape: fmt.Sprintf("%T", ev)}, nil
}

func missing(path string) error {
	return &trace.DecodeError{Path: path, Err: trace.ErrMissingField}
}

func convertTrace(t types.Trace) (trace.Event, error) {
	switch v := t.(type) {
	case *types.TraceMemberOrchestrationTrace:
		return convertOrchestration(v.Value)
	case *types.TraceMemberGuardrailTrace:
		return convertGuardrail(v.Value), nil
	case *types.TraceMemberPreProcessingTrace:
		return trace.Unknown{Shape: "trace.preProcessingTrace"}, nil
	case *types.TraceMemberPostProcessingTrace:
		return trace.Unknown{Shape: "trace.postProcessingTrace"}, nil
	case *types.TraceMemberFailureTrace:
		return trace.Unknown{Shape: "trace.failureTrace"}, nil
	case nil:
		return trace.Unknown{Shape: "trace"}, nil
	}
	return trace.Unknown{Shape: fmt.Sprintf("trace.%T", t)}, nil
}

func convertOrchestration(o types.OrchestrationTrace) (trace.Event, error) {
	const path = "trace.orchestrationTrace"
	switch v := o.(type) {
	case *types.OrchestrationTraceMemberRationale:
		if v.Value.Text == nil {
			return nil, missing(path + ".rationale.text")
		}
		return trace.Rationale{Text: *v.Value.Text}, nil
	case *types.OrchestrationTraceMemberInvocationInput:
		return convertInvocationInput(v.Value)
	case *types.OrchestrationTraceMemberObservation:
		return convertObservation(v.Value)
	case *types.OrchestrationTraceMemberModelInvocationInput:
		return trace.Unknown{Shape: path + ".modelInvocationInput"}, nil
	case *types.OrchestrationTraceMemberModelInvocationOutput:
		return trace.Unknown{Shape: path + ".modelInvocationOutput"}, nil
	}
	return trace.Unknown{Shape: path}, nil
}

func convertInvocationInput(in types.InvocationInput) (trace.Event, error) {
	const path = "trace.orchestrationTrace.invocationInput"
	switch {
	case in.CodeInterpreterInvocationInput != nil:
		if in.CodeInterpreterInvocationInput.Code == nil {
			return nil, missing(path + ".codeInterpreterInvocationInput.code")
		}
		return trace.CodeInterpreterInvocation{Code: *in.CodeInterpreterInvocationInput.Code}, nil
	case in.KnowledgeBaseLookupInput != nil:
		kb := in.KnowledgeBaseLookupInput
		if kb.Text == nil {
			return nil, missing(path + ".knowledgeBaseLookupInput.text")
		}
		return trace.KnowledgeBaseLookup{KnowledgeBaseID: aws.ToString(kb.KnowledgeBaseId), Text: *kb.Text}, nil
	case in.ActionGroupInvocationInput != nil:
		ag := in.ActionGroupInvocationInput
		if ag.Function == nil {
			return nil, missing(path + ".actionGroupInvocationInput.function")
		}
		params := make([]trace.Parameter, 0, len(ag.Parameters))
		for _, p := range ag.Parameters {
			params = append(params, trace.Parameter{
				Name:  aws.ToString(p.Name),
				Type:  aws.ToString(p.Type),
				Value: aws.ToString(p.Value),
			})
		}
		return trace.ActionGroupInvocation{
			ActionGroup: aws.ToString(ag.ActionGroupName),
			Function:    *ag.Function,
			Parameters:  params,
		}, nil
	}
	return trace.Unknown{Shape: path}, nil
}

func convertObservation(o types.Observation) (trace.Event, error) {
	const path = "trace.orchestrationTrace.observation"
	switch {
	case o.CodeInterpreterInvocationOutput != nil:
		ci := o.CodeInterpreterInvocationOutput
		switch {
		case ci.ExecutionOutput != nil:
			return trace.CodeInterpreterOutput{Output: *ci.ExecutionOutput}, nil
		case ci.ExecutionError != nil:
			return trace.CodeInterpreterOutput{Error: *ci.ExecutionError, Failed: true}, nil
		}
		return trace.Unknown{Shape: path + ".codeInterpreterInvocationOutput"}, nil
	case o.KnowledgeBaseLookupOutput != nil:
		refs := make([]trace.Reference, 0, len(o.KnowledgeBaseLookupOutput.RetrievedReferences))
		for _, r := range o.KnowledgeBaseLookupOutput.RetrievedReferences {
			var ref trace.Reference
			if r.Content != nil {
				ref.Text = aws.ToString(r.Content.Text)
			}
			if r.Location != nil && r.Location.S3Location != nil {
				ref.URI = aws.ToString(r.Location.S3Location.Uri)
			}
			refs = append(refs, ref)
		}
		return trace.KnowledgeBaseLookupOutput{References: refs}, nil
	case o.ActionGroupInvocationOutput != nil:
		if o.ActionGroupInvocationOutput.Text == nil {
			return nil, missing(path + ".actionGroupInvocationOutput.text")
		}
		return trace.ActionGroupOutput{Text: *o.ActionGroupInvocationOutput.Text}, nil
	case o.FinalResponse != nil:
		if o.FinalResponse.Text == nil {
			return nil, missing(path + ".finalResponse.text")
		}
		return trace.FinalResponse{Text: *o.FinalResponse.Text}, nil
	}
	return trace.Unknown{Shape: path}, nil
}

func convertGuardrail(g types.GuardrailTrace) trace.GuardrailAssessment {
	var blocks []trace.GuardrailBlock
	assessments := append(append([]types.GuardrailAssessment{}, g.InputAssessments...), g.OutputAssessments...)
	for _, a := range assessments {
		if a.ContentPolicy != nil {
			for _, f := range a.ContentPolicy.Filters {
				if f.Action == types.GuardrailContentPolicyActionBlocked {
					blocks = append(blocks, trace.GuardrailBlock{Name: string(f.Type), Confidence: string(f.Confidence)})
				}
			}
		}
		if a.TopicPolicy != nil {
			for _, t := range a.TopicPolicy.Topics {
				if t.Action == types.GuardrailTopicPolicyActionBlocked {
					blocks = append(blocks, trace.GuardrailBlock{Topic: true, Name: aws.ToString(t.Name)})
				}
			}
		}
	}
	return trace.GuardrailAssessment{Blocks: blocks}
}

func convertFiles(files []types.OutputFile) (trace.Event, error) {
	out := make([]trace.File, 0, len(files))
	for i, f := range files {
		p := fmt.Sprintf("files.files[%d]", i)
		switch {
		case f.Name == nil:
			return nil, missing(p + ".name")
		case f.Type == nil:
			return nil, missing(p + ".type")
		case f.Bytes == nil:
			return nil, missing(p + ".bytes")
		}
		out = append(out, trace.File{Name: *f.Name, MIMEType: *f.Type, Data: f.Bytes})
	}
	return trace.FileOutput{Files: out}, nil
}
