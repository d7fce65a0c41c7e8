package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/oshokin/pkgsync/internal/logger"
)

// Result captures the outcome of a finished subprocess.
type Result struct {
	// Stdout is the captured standard output, trailing whitespace trimmed.
	Stdout string
	// Stderr is the captured standard error, trailing whitespace trimmed.
	Stderr string
	// ExitCode is the process exit code. Zero means success.
	ExitCode int
}

// Ok reports whether the process exited with code zero.
func (r Result) Ok() bool {
	return r.ExitCode == 0
}

// Runner executes external commands with explicit argument lists.
// Commands are never assembled from interpolated strings, so arguments
// containing spaces or shell metacharacters are passed through untouched.
type Runner interface {
	// Run executes name with args and waits for completion. A non-zero exit
	// code is not an error: it is reported through Result.ExitCode so callers
	// can apply their own severity policy. The returned error is reserved for
	// failures to launch or be interrupted (binary not found, context canceled).
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// RunElevated behaves like Run but executes the command through sudo.
	// Each call may prompt the operator for credentials.
	RunElevated(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner executing real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return e.run(ctx, name, args)
}

// RunElevated implements Runner.
func (e *ExecRunner) RunElevated(ctx context.Context, name string, args ...string) (Result, error) {
	return e.run(ctx, "sudo", append([]string{name}, args...))
}

func (e *ExecRunner) run(ctx context.Context, name string, args []string) (Result, error) {
	logger.DebugKV(ctx, "Executing command", "command", name, "args", strings.Join(args, " "))

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: strings.TrimRight(stdout.String(), "\n"),
		Stderr: strings.TrimRight(stderr.String(), "\n"),
	}

	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			result.ExitCode = exitError.ExitCode()
			return result, nil
		}

		return result, err
	}

	return result, nil
}
