package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/efebarandurmaz/gendocs/internal/observability"
)

// Invocation is the command launched for every match. It carries no file
// name, so every launch of a run is identical.
type Invocation struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// NewInvocation copies args so later changes to the caller's slice do not
// leak into the run.
func NewInvocation(command string, args []string) Invocation {
	return Invocation{Command: command, Args: append([]string{}, args...)}
}

// Result describes a child that was started and ran to completion.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Invoker launches an Invocation and waits for it.
//
// An error means the child could not be run at all (not found, not
// executable). A child that ran and exited non-zero is a Result, not an
// error.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// ExecInvoker runs invocations as OS processes. Nil streams are inherited
// from the current process. No timeout is applied and ctx never kills the
// child.
type ExecInvoker struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Dir is the child's working directory; empty inherits ours.
	Dir string
}

func (e *ExecInvoker) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	cmd := exec.Command(inv.Command, inv.Args...)
	if errors.Is(cmd.Err, exec.ErrDot) {
		// Found through a relative PATH entry such as ".". Run it anyway,
		// anchored to our working directory rather than Dir.
		if abs, err := filepath.Abs(cmd.Path); err == nil {
			cmd.Path = abs
			cmd.Err = nil
		}
	}
	cmd.Dir = e.Dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if e.Stdin != nil {
		cmd.Stdin = e.Stdin
	}
	if e.Stdout != nil {
		cmd.Stdout = e.Stdout
	}
	if e.Stderr != nil {
		cmd.Stderr = e.Stderr
	}

	observability.LoggerFrom(ctx).Debug("exec", "command", inv.Command, "args", inv.Args, "dir", cmd.Dir)

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 when the child was killed by a signal.
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("run %s: %w", inv.Command, err)
}
