package actiongroup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// FunctionError carries the message shown to the agent when a function
// fails. The underlying cause is logged, not returned to the agent.
type FunctionError struct {
	Message string
	Err     error
}

func (e *FunctionError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *FunctionError) Unwrap() error { return e.Err }

func failf(err error, format string, args ...any) error {
	return &FunctionError{Message: fmt.Sprintf(format, args...), Err: err}
}

// Handler dispatches requests to a Registry.
type Handler struct {
	registry *Registry
}

// NewHandler creates a Handler over r.
func NewHandler(r *Registry) *Handler {
	return &Handler{registry: r}
}

// Handle runs the requested function. Failures never escape as Go errors:
// they become a FAILURE response whose body the agent can read.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	slog.Info("action group call", "action_group", req.ActionGroup, "function", req.Function,
		"parameters", len(req.Parameters), "session", req.SessionID)

	f, err := h.registry.Get(req.Function)
	if err != nil {
		slog.Warn("action group call failed", "function", req.Function, "error", err)
		return newResponse(req, StateFailure, "Error: "+err.Error())
	}
	body, err := f.Invoke(ctx, req)
	if err != nil {
		slog.Warn("action group call failed", "function", req.Function, "error", err)
		return newResponse(req, StateFailure, failureBody(err))
	}
	slog.Debug("action group response", "function", req.Function, "body", body)
	return newResponse(req, "", body)
}

func failureBody(err error) string {
	var fe *FunctionError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "Error: " + err.Error()
}

// HandleJSON decodes a raw request event, handles it and encodes the
// response.
func (h *Handler) HandleJSON(ctx context.Context, event []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(event, &req); err != nil {
		return nil, fmt.Errorf("decode action group event: %w", err)
	}
	out, err := json.Marshal(h.Handle(ctx, req))
	if err != nil {
		return nil, fmt.Errorf("encode action group response: %w", err)
	}
	return out, nil
}
