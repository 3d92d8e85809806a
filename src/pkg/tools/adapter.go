// Package tools runs the external analyzers and normalizes their output into findings.
//
// Every analyzer is described by a Spec (binary, argument vector, accepted exit codes,
// output parser). An Adapter executes one Spec against a target directory:
//
//   - a nonzero exit code is data: RanSuccessfully is false when it is not accepted
//   - a missing binary, malformed required JSON, a timeout or a failed directory restore
//     is returned as a *ToolInvocationError
//   - native severities are classified through the severity package, unknown ones as INFO
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"

	"github.com/gh-nvat/iacguard/src/pkg/models"
	"github.com/gh-nvat/iacguard/src/pkg/severity"
	"github.com/gh-nvat/iacguard/src/pkg/workdir"
)

var logger = log.WithField("package", "tools")

// Adapter runs one analyzer
type Adapter struct {
	spec     Spec
	executor Executor
	env      []string
}

// Option configures an Adapter
type Option func(*Adapter)

// WithExecutor replaces the subprocess executor
func WithExecutor(e Executor) Option {
	return func(a *Adapter) {
		if e != nil {
			a.executor = e
		}
	}
}

// WithEnv appends KEY=VALUE pairs to the subprocess environment
func WithEnv(env []string) Option {
	return func(a *Adapter) {
		a.env = append(a.env, env...)
	}
}

// WithBinary overrides the executable name or path. Empty keeps the default.
func WithBinary(binary string) Option {
	return func(a *Adapter) {
		if binary != "" {
			a.spec.Binary = binary
		}
	}
}

// WithTimeout overrides the subprocess time bound. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.spec.Timeout = d
		}
	}
}

// NewAdapter creates an adapter for an explicit spec
func NewAdapter(spec Spec, opts ...Option) *Adapter {
	a := &Adapter{
		spec:     spec,
		executor: ProcessExecutor{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// New creates an adapter for one of the built-in tools
func New(tool models.Tool, opts ...Option) (*Adapter, error) {
	spec, ok := DefaultSpec(tool)
	if !ok {
		return nil, fmt.Errorf("no adapter for tool %q", tool)
	}
	return NewAdapter(spec, opts...), nil
}

// Tool returns the tool this adapter runs
func (a *Adapter) Tool() models.Tool {
	return a.spec.Tool
}

// Spec returns the effective spec, overrides applied
func (a *Adapter) Spec() Spec {
	return a.spec
}

// Run executes the analyzer against target and returns its normalized result
func (a *Adapter) Run(ctx context.Context, target string) (*models.ToolResult, error) {
	l := logger.WithField("tool", a.spec.Tool).WithField("binary", a.spec.Binary)
	l.WithField("target", target).Info("Run: starting...")

	ctx, span := startToolSpan(ctx, a.spec.Tool, a.spec.Binary, target)
	defer span.End()
	start := time.Now()

	cmd := Command{
		Name:    a.spec.Binary,
		Args:    a.spec.Args(target),
		Env:     a.env,
		Timeout: a.spec.Timeout,
	}

	var exe *Execution
	execute := func() error {
		var err error
		exe, err = a.executor.Execute(ctx, cmd)
		return err
	}

	var err error
	if a.spec.ChangeDir {
		err = workdir.Run(target, execute)
	} else {
		err = execute()
	}
	if err != nil {
		invErr := a.classify(err)
		kind := ErrorKind("Error")
		var te *ToolInvocationError
		if errors.As(invErr, &te) {
			kind = te.Kind
		}
		recordToolMetrics(ctx, a.spec.Tool, time.Since(start), nil, kind)
		span.RecordError(invErr)
		span.SetStatus(codes.Error, invErr.Error())
		l.WithField("error", invErr).Error("Run: failed")
		return nil, invErr
	}

	result := &models.ToolResult{
		Tool:            a.spec.Tool,
		ExitCode:        exe.ExitCode,
		Findings:        []models.Finding{},
		RawOutput:       string(exe.Stdout),
		Stderr:          string(exe.Stderr),
		RanSuccessfully: a.spec.Accepts(exe.ExitCode),
		Duration:        time.Since(start),
	}
	l.WithField("stdout", result.RawOutput).WithField("stderr", result.Stderr).Debug("Raw tool output")

	natives, err := a.parse(exe.Stdout)
	if err != nil {
		invErr := NewToolInvocationError(KindMalformedOutput, a.spec.Tool, a.spec.Binary, err).
			WithOutput(string(exe.Stdout))
		recordToolMetrics(ctx, a.spec.Tool, time.Since(start), nil, KindMalformedOutput)
		span.RecordError(invErr)
		span.SetStatus(codes.Error, invErr.Error())
		l.WithField("error", err).Error("Run: malformed output")
		return nil, invErr
	}
	for _, n := range natives {
		sev, blocking := severity.Classify(a.spec.Tool, n.Severity)
		result.Findings = append(result.Findings, models.Finding{
			Tool:     a.spec.Tool,
			Severity: sev,
			RuleID:   n.RuleID,
			Message:  n.Message,
			Location: n.Location,
			Blocking: blocking,
		})
	}

	if !result.RanSuccessfully {
		l.WithFields(log.Fields{
			"exitCode": result.ExitCode,
			"accepted": a.spec.AcceptedExitCodes,
			"error":    ErrScanFailed,
		}).Warn("Tool exited with an unaccepted code")
	}

	setToolSpanResult(span, result)
	recordToolMetrics(ctx, a.spec.Tool, result.Duration, result, "")
	l.WithFields(log.Fields{
		"exitCode": result.ExitCode,
		"findings": len(result.Findings),
		"blocking": len(result.BlockingFindings()),
		"duration": result.Duration,
	}).Info("Run: done.")
	return result, nil
}

// parse decodes stdout according to the Spec output mode.
// Unparsable output is fatal for JSON-required tools whatever the exit code;
// tolerant tools fall back to the exit code alone.
func (a *Adapter) parse(stdout []byte) ([]NativeFinding, error) {
	if a.spec.Output == OutputNone || a.spec.Parse == nil {
		return nil, nil
	}
	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, nil
	}
	natives, err := a.spec.Parse(stdout)
	if err == nil {
		return natives, nil
	}
	if a.spec.Output == OutputJSONTolerant {
		logger.WithField("tool", a.spec.Tool).WithField("error", err).
			Warn("Unparsable tool output, falling back to exit code")
		return nil, nil
	}
	return nil, err
}

// classify maps an execution error onto the taxonomy. A restore failure wins even when
// the tool itself also failed.
func (a *Adapter) classify(err error) error {
	switch {
	case errors.Is(err, workdir.ErrRestoreFailed):
		return NewToolInvocationError(KindDirectoryRestoreFailed, a.spec.Tool, a.spec.Binary, err)
	case errors.Is(err, ErrBinaryNotFound):
		return NewToolInvocationError(KindBinaryNotFound, a.spec.Tool, a.spec.Binary, err)
	case errors.Is(err, ErrTimeout):
		return NewToolInvocationError(KindTimeout, a.spec.Tool, a.spec.Binary, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("failed to run %s: %w", a.spec.Binary, err)
	}
}
