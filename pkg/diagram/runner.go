package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

const defaultRunTimeout = 2 * time.Minute

// Runner executes a generated script inside dir.
type Runner interface {
	Run(ctx context.Context, dir, script string) (string, error)
}

// PythonRunner runs scripts with a Python interpreter that has the
// "diagrams" package and graphviz installed.
type PythonRunner struct {
	Python  string
	Timeout time.Duration
}

// Run executes script from dir and returns its combined output.
func (r PythonRunner) Run(ctx context.Context, dir, script string) (string, error) {
	python := r.Python
	if python == "" {
		python = "python3"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, python, script)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := stdout.String()
	if stderr.Len() > 0 {
		out += "\nSTDERR:\n" + stderr.String()
	}
	if runErr != nil {
		return out, fmt.Errorf("run %s: %w", script, runErr)
	}
	return out, nil
}
