// Package actiongroup implements the tool side of a managed agent: the
// functions an agent's action group calls, and the request and response
// envelopes the agent runtime exchanges with them.
package actiongroup

// Parameter is one named argument chosen by the agent.
type Parameter struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AgentInfo identifies the calling agent.
type AgentInfo struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Alias   string `json:"alias"`
	Version string `json:"version"`
}

// Request is the event delivered for one function call.
type Request struct {
	MessageVersion          string            `json:"messageVersion"`
	Agent                   AgentInfo         `json:"agent"`
	ActionGroup             string            `json:"actionGroup"`
	Function                string            `json:"function"`
	Parameters              []Parameter       `json:"parameters"`
	InputText               string            `json:"inputText"`
	SessionID               string            `json:"sessionId"`
	SessionAttributes       map[string]string `json:"sessionAttributes,omitempty"`
	PromptSessionAttributes map[string]string `json:"promptSessionAttributes,omitempty"`
}

// Param returns the value of the named parameter. Agents are not always
// consistent about names, so a request with a single parameter matches any
// name.
func (r Request) Param(name string) (string, bool) {
	for _, p := range r.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	if len(r.Parameters) == 1 {
		return r.Parameters[0].Value, true
	}
	return "", false
}

// ResponseState marks a failed call. It is omitted on success.
type ResponseState string

const StateFailure ResponseState = "FAILURE"

// TextBody is the TEXT member of a response body.
type TextBody struct {
	Body string `json:"body"`
}

// FunctionResponse carries the function's result.
type FunctionResponse struct {
	ResponseState ResponseState       `json:"responseState,omitempty"`
	ResponseBody  map[string]TextBody `json:"responseBody"`
}

// ActionResponse echoes the call being answered.
type ActionResponse struct {
	ActionGroup      string           `json:"actionGroup"`
	Function         string           `json:"function"`
	FunctionResponse FunctionResponse `json:"functionResponse"`
}

// Response is returned to the agent runtime.
type Response struct {
	MessageVersion string         `json:"messageVersion"`
	Response       ActionResponse `json:"response"`
}

// Body returns the TEXT body of the response.
func (r Response) Body() string {
	return r.Response.FunctionResponse.ResponseBody["TEXT"].Body
}

func newResponse(req Request, state ResponseState, body string) Response {
	return Response{
		MessageVersion: req.MessageVersion,
		Response: ActionResponse{
			ActionGroup: req.ActionGroup,
			Function:    req.Function,
			FunctionResponse: FunctionResponse{
				ResponseState: state,
				ResponseBody:  map[string]TextBody{"TEXT": {Body: body}},
			},
		},
	}
}
