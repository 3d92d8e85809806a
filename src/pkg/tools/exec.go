package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

const (
	// DefaultTimeout bounds every tool subprocess unless overridden
	DefaultTimeout = 5 * time.Minute

	// waitDelay bounds how long Wait blocks on inherited pipes after the process is killed
	waitDelay = 2 * time.Second
)

// Command is a fully resolved subprocess invocation. Args are passed as a vector and
// never interpreted by a shell.
type Command struct {
	Name    string
	Args    []string
	Env     []string // appended to the current process environment
	Timeout time.Duration
}

// Execution is the captured outcome of a finished subprocess
type Execution struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs subprocesses.
// A nonzero exit code is returned as data; errors are reserved for launch failures
// (wrapping ErrBinaryNotFound), timeouts (wrapping ErrTimeout) and cancellation.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Execution, error)
}

// ProcessExecutor runs commands with os/exec
type ProcessExecutor struct{}

var _ Executor = ProcessExecutor{}

func (ProcessExecutor) Execute(ctx context.Context, c Command) (*Execution, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, c.Name, c.Args...)
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.WithField("cmd", cmd.String()).Debug("Executing command")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, c.Name, err)
	}
	err := cmd.Wait()

	// Parent cancellation wins over our own deadline
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	res := &Execution{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", c.Name, err)
	}
	return res, nil
}
