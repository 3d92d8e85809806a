package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gh-nvat/iacguard/src/pkg/configcheck"
	"github.com/gh-nvat/iacguard/src/pkg/models"
	"github.com/gh-nvat/iacguard/src/pkg/report"
	"github.com/gh-nvat/iacguard/src/pkg/template"
	"github.com/gh-nvat/iacguard/src/pkg/trace"
)

var logger *log.Entry = log.WithFields(log.Fields{
	"package": "runner",
})

type RunnerBase struct {
	Context context.Context
	Options *Options

	RunMode string

	Scanner   Scanner // nil when only the config is validated
	Rules     configcheck.Rules
	Evaluator *configcheck.RegoEvaluator
	Renderer  *template.Renderer

	// Stdout receives the report in Options.OutputFormat
	Stdout io.Writer
}

// make RunnerBase implement RunnerInterface
var _ RunnerInterface = (*RunnerBase)(nil)

func NewRunnerBase(
	ctx context.Context,
	options *Options,
	scanner Scanner,
	rules configcheck.Rules,
	evaluator *configcheck.RegoEvaluator,
	renderer *template.Renderer,
) (*RunnerBase, error) {
	runner := &RunnerBase{
		Context:   ctx,
		Options:   options,
		RunMode:   options.RunMode,
		Scanner:   scanner,
		Rules:     rules,
		Evaluator: evaluator,
		Renderer:  renderer,
		Stdout:    os.Stdout,
	}
	return runner, nil
}

func (r *RunnerBase) Initialize() error {
	logger.Info("Initializing runner: starting...")

	if r.Evaluator == nil || r.Renderer == nil {
		return fmt.Errorf("evaluator and renderer are required")
	}
	if r.Options.ScanEnabled() && r.Scanner == nil {
		return fmt.Errorf("scanner is required when a target is set")
	}

	logger.Info("Initalize runner: Evaluator: Loading and validating custom policies")
	if err := r.Evaluator.LoadAndValidate(r.Context); err != nil {
		return fmt.Errorf("failed to load custom policies: %w", err)
	}

	logger.Info("Initalize runner: done.")
	return nil
}

// Process runs the scan and the config check concurrently and merges them into a report.
// Fatal scan errors are returned as-is.
func (r *RunnerBase) Process() (*report.Report, error) {
	ctx, span := trace.StartSpan(r.Context, "Process")
	defer span.End()
	logger.Info("Process: starting...")

	var (
		verdict    *models.Verdict
		violations []models.Violation
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.Options.ScanEnabled() {
		g.Go(func() error {
			v, err := r.Scanner.Scan(gctx, r.Options.Target, r.Options.Tools)
			if err != nil {
				return err
			}
			verdict = v
			return nil
		})
	}
	if r.Options.ConfigPath != "" {
		g.Go(func() error {
			v, err := r.ValidateConfig(gctx, r.Options.ConfigPath)
			if err != nil {
				return err
			}
			violations = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	rep := report.Build(verdict, violations)
	rep.Target = r.Options.Target
	rep.ConfigPath = r.Options.ConfigPath
	span.SetAttributes(attribute.Bool("report.passed", rep.Passed))

	logger.WithField("summary", rep.Summary()).Info("Process: done.")
	return rep, nil
}

// ValidateConfig loads the ConfigObject at path and runs the built-in rules followed by the
// custom policies
func (r *RunnerBase) ValidateConfig(ctx context.Context, path string) ([]models.Violation, error) {
	ctx, span := trace.StartSpan(ctx, "ValidateConfig",
		oteltrace.WithAttributes(attribute.String("config.path", path)))
	defer span.End()
	logger.WithField("path", path).Info("ValidateConfig: starting...")

	cfg, err := configcheck.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	violations := r.Rules.Validate(cfg)
	if r.Evaluator != nil {
		custom, err := r.Evaluator.Evaluate(ctx, cfg)
		if err != nil {
			return nil, err
		}
		violations = append(violations, custom...)
	}
	span.SetAttributes(attribute.Int("config.violations", len(violations)))

	logger.WithField("violations", len(violations)).Info("ValidateConfig: done.")
	return violations, nil
}

func (r *RunnerBase) Output(rep *report.Report) error {
	_, span := trace.StartSpan(r.Context, "Output")
	defer span.End()

	logger.Info("Output: starting...")
	if err := r.outputStdout(rep); err != nil {
		return err
	}
	if err := r.outputReportJson(rep); err != nil {
		return err
	}
	if err := r.outputReportMarkdown(rep); err != nil {
		return err
	}
	logger.Info("Output: done.")
	return nil
}

func (r *RunnerBase) outputStdout(rep *report.Report) error {
	switch r.Options.OutputFormat {
	case OutputFormatJSON:
		return rep.RenderJSON(r.Stdout)
	case OutputFormatMarkdown:
		md, err := r.Renderer.RenderWithTemplates(r.Options.TemplatesPath, rep.Data())
		if err != nil {
			return err
		}
		_, err = io.WriteString(r.Stdout, md)
		return err
	default:
		return rep.RenderText(r.Stdout)
	}
}

// Exporting report json file to output directory if enabled
func (r *RunnerBase) outputReportJson(rep *report.Report) error {
	if !r.Options.EnableExportReport {
		logger.Info("OutputJson: option was disabled")
		return nil
	}
	logger.Info("OutputJson: starting...")

	if err := os.MkdirAll(r.Options.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	filePath := filepath.Join(r.Options.OutputDir, ReportJSONFile)
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	if err := rep.RenderJSON(f); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write report data to file")
		return err
	}
	logger.WithField("filePath", filePath).Info("Written report data to file")
	return nil
}

// Exporting report markdown file to output directory if enabled
func (r *RunnerBase) outputReportMarkdown(rep *report.Report) error {
	if !r.Options.EnableExportReport {
		logger.Info("OutputMarkdown: option was disabled")
		return nil
	}
	logger.Info("OutputMarkdown: starting...")

	renderedMarkdown, err := r.Renderer.RenderWithTemplates(r.Options.TemplatesPath, rep.Data())
	if err != nil {
		logger.WithField("error", err).Error("Failed to render markdown template")
		return err
	}

	if err := os.MkdirAll(r.Options.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	filePath := filepath.Join(r.Options.OutputDir, ReportMarkdownFile)
	if err := os.WriteFile(filePath, []byte(renderedMarkdown), 0644); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write markdown report to file")
		return err
	}

	logger.WithField("filePath", filePath).Info("Written markdown report to file")
	return nil
}
