package agent

import (
	"errors"
	"fmt"
)

// ErrEmptyPrompt is returned by Send when there is neither text nor an
// attachment to send.
var ErrEmptyPrompt = errors.New("empty prompt")

// InvokeError is returned when the agent runtime could not be invoked or
// its response stream failed.
type InvokeError struct {
	SessionID string
	Err       error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("agent session %s: %v", e.SessionID, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }
