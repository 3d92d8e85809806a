// Package orchestrator runs the requested analyzers against one target and folds their
// results into a Verdict.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gh-nvat/iacguard/src/pkg/models"
	"github.com/gh-nvat/iacguard/src/pkg/tools"
	"github.com/gh-nvat/iacguard/src/pkg/trace"
)

var logger = log.WithField("package", "orchestrator")

var (
	// ErrInvalidTarget indicates the scan target is not an existing directory
	ErrInvalidTarget = errors.New("invalid scan target")

	// ErrDuplicateTool indicates a tool was requested more than once
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrUnknownTool indicates a tool with no configured adapter
	ErrUnknownTool = errors.New("unknown tool")
)

// ToolRunner runs a single analyzer. *tools.Adapter implements it.
type ToolRunner interface {
	Tool() models.Tool
	Run(ctx context.Context, target string) (*models.ToolResult, error)
}

var _ ToolRunner = (*tools.Adapter)(nil)

// Config holds caller configuration passed down to every adapter
type Config struct {
	// Env is appended to each subprocess environment as KEY=VALUE pairs
	Env []string

	// Binaries and Timeouts override the per-tool defaults
	Binaries map[models.Tool]string
	Timeouts map[models.Tool]time.Duration

	// Sequential runs one adapter at a time
	Sequential bool

	// Executor replaces the subprocess executor, nil uses os/exec
	Executor tools.Executor
}

// Orchestrator holds one adapter per tool
type Orchestrator struct {
	runners    map[models.Tool]ToolRunner
	sequential bool
}

// New creates an orchestrator with adapters for all built-in tools
func New(cfg Config) (*Orchestrator, error) {
	runners := make(map[models.Tool]ToolRunner, len(models.AllTools))
	for _, tool := range models.AllTools {
		opts := []tools.Option{
			tools.WithEnv(cfg.Env),
			tools.WithBinary(cfg.Binaries[tool]),
			tools.WithTimeout(cfg.Timeouts[tool]),
		}
		if cfg.Executor != nil {
			opts = append(opts, tools.WithExecutor(cfg.Executor))
		}
		adapter, err := tools.New(tool, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create adapter: %w", err)
		}
		runners[tool] = adapter
	}
	return &Orchestrator{runners: runners, sequential: cfg.Sequential}, nil
}

// NewWithRunners creates an orchestrator from explicit runners
func NewWithRunners(sequential bool, runners ...ToolRunner) *Orchestrator {
	m := make(map[models.Tool]ToolRunner, len(runners))
	for _, r := range runners {
		m[r.Tool()] = r
	}
	return &Orchestrator{runners: m, sequential: sequential}
}

// Scan runs the requested tools (all of them when requested is empty) against target.
//
// A fatal adapter error (missing binary, malformed output, timeout, failed directory
// restore) cancels the remaining tools and is returned as-is; no Verdict is produced.
// Result order follows the request order, never completion order.
func (o *Orchestrator) Scan(ctx context.Context, target string, requested []models.Tool) (*models.Verdict, error) {
	if len(requested) == 0 {
		requested = models.AllTools
	}
	l := logger.WithField("target", target).WithField("tools", requested)
	l.Info("Scan: starting...")

	ctx, span := trace.StartSpan(ctx, "Orchestrator.Scan",
		oteltrace.WithAttributes(attribute.String("scan.target", target)))
	defer span.End()
	start := time.Now()

	absTarget, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	runners, err := o.selectRunners(requested)
	if err != nil {
		return nil, err
	}

	results := make([]*models.ToolResult, len(runners))
	g, gctx := errgroup.WithContext(ctx)
	if o.sequential {
		g.SetLimit(1)
	}
	for i, r := range runners {
		g.Go(func() error {
			result, err := r.Run(gctx, absTarget)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordScanMetrics(ctx, time.Since(start), nil)
		l.WithField("error", err).Error("Scan: aborted")
		return nil, err
	}

	verdict := models.NewVerdict(results)
	span.SetAttributes(
		attribute.Bool("scan.passed", verdict.Passed),
		attribute.Int("scan.blocking_findings", len(verdict.BlockingFindings)),
	)
	recordScanMetrics(ctx, time.Since(start), verdict)
	l.WithFields(log.Fields{
		"passed":      verdict.Passed,
		"blocking":    len(verdict.BlockingFindings),
		"failedTools": verdict.FailedTools(),
	}).Info("Scan: done.")
	return verdict, nil
}

// resolveTarget makes the target absolute. Tools that change directory run concurrently
// with tools that don't, so a relative path would resolve against a moving cwd.
func resolveTarget(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidTarget, target, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidTarget, target, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidTarget, target)
	}
	return abs, nil
}

func (o *Orchestrator) selectRunners(requested []models.Tool) ([]ToolRunner, error) {
	seen := make(map[models.Tool]bool, len(requested))
	out := make([]ToolRunner, 0, len(requested))
	for _, tool := range requested {
		if seen[tool] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, tool)
		}
		seen[tool] = true
		r, ok := o.runners[tool]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
		}
		out = append(out, r)
	}
	return out, nil
}
