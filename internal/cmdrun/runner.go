// Package cmdrun runs external tools. Model inference always happens in a
// child process.
package cmdrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result captures one finished invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution so stages can be tested with fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return res, &Error{Name: name, Result: res, Err: err}
	}
	return res, nil
}

// Error describes a command that ran but failed.
type Error struct {
	Name   string
	Result Result
	Err    error
}

func (e *Error) Error() string {
	stderr := strings.TrimSpace(e.Result.Stderr)
	if len(stderr) > 512 {
		stderr = stderr[len(stderr)-512:]
	}
	if stderr == "" {
		return fmt.Sprintf("%s failed (exit=%d): %v", e.Name, e.Result.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s failed (exit=%d): %s", e.Name, e.Result.ExitCode, stderr)
}

func (e *Error) Unwrap() error { return e.Err }
