package actiongroup

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Function is one callable in an action group.
type Function interface {
	Name() string
	Invoke(ctx context.Context, req Request) (string, error)
}

// UnknownFunctionError is returned for a call to an unregistered function.
// Known lists the registered names so the agent can correct itself.
type UnknownFunctionError struct {
	Name  string
	Known []string
}

func (e *UnknownFunctionError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown function %q", e.Name)
	}
	return fmt.Sprintf("unknown function %q (available: %s)", e.Name, strings.Join(e.Known, ", "))
}

// MissingParameterError is returned when a required parameter is absent.
type MissingParameterError struct {
	Function string
	Name     string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: missing parameter %q", e.Function, e.Name)
}

// Registry maps function names to implementations.
type Registry struct {
	funcs map[string]Function
}

// NewRegistry creates a registry holding fns.
func NewRegistry(fns ...Function) *Registry {
	r := &Registry{funcs: make(map[string]Function)}
	for _, f := range fns {
		r.Register(f)
	}
	return r
}

// Register adds f, replacing any function with the same name.
func (r *Registry) Register(f Function) {
	r.funcs[f.Name()] = f
}

// Get returns the function with the given name.
func (r *Registry) Get(name string) (Function, error) {
	f, ok := r.funcs[name]
	if !ok {
		return nil, &UnknownFunctionError{Name: name, Known: r.Names()}
	}
	return f, nil
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
