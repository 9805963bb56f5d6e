package trace

import (
	"fmt"
	"strings"
)

// EntryFor maps an event to the trace entry displayed for it.
// The second result is false for events that do not produce an entry
// (text chunks, files, guardrail decisions, unknown shapes).
func EntryFor(ev Event) (Entry, bool) {
	switch e := ev.(type) {
	case Rationale:
		return Entry{Kind: KindRationale, Text: e.Text}, true
	case CodeInterpreterInvocation:
		return Entry{Kind: KindCodeInterpreter, Text: e.Code}, true
	case KnowledgeBaseLookup:
		return Entry{Kind: KindKnowledgeBaseLookup, Text: e.Text}, true
	case ActionGroupInvocation:
		return Entry{Kind: KindActionGroupInvocation, Text: e.Function}, true
	case CodeInterpreterOutput:
		if e.Failed {
			return Entry{Kind: KindObservation, Text: e.Error, IsError: true}, true
		}
		return Entry{Kind: KindObservation, Text: e.Output}, true
	case KnowledgeBaseLookupOutput:
		return Entry{
			Kind:       KindKnowledgeBaseLookupOutput,
			Text:       FormatReferences(e.References),
			References: e.References,
		}, true
	case ActionGroupOutput:
		return Entry{Kind: KindObservation, Text: e.Text}, true
	case FinalResponse:
		return Entry{Kind: KindFinalResponse, Text: e.Text}, true
	}
	return Entry{}, false
}

// FormatReferences renders retrieved references as markdown, one location
// line followed by its content per reference.
func FormatReferences(refs []Reference) string {
	var b strings.Builder
	for i, r := range refs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if r.URI != "" {
			b.WriteString(r.URI)
			b.WriteString("\n\n")
		}
		b.WriteString(r.Text)
	}
	return b.String()
}

// GuardrailWarnings returns the user-visible warning for each blocked
// filter or topic.
func GuardrailWarnings(g GuardrailAssessment) []string {
	out := make([]string, 0, len(g.Blocks))
	for _, b := range g.Blocks {
		if b.Topic {
			out = append(out, fmt.Sprintf("Guardrail blocked topic %s", b.Name))
			continue
		}
		out = append(out, fmt.Sprintf("Guardrail blocked %s confidence: %s", b.Name, b.Confidence))
	}
	return out
}
