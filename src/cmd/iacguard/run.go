package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/gh-nvat/iacguard/src/internal/runner"
	"github.com/gh-nvat/iacguard/src/pkg/configcheck"
	"github.com/gh-nvat/iacguard/src/pkg/github"
	"github.com/gh-nvat/iacguard/src/pkg/orchestrator"
	"github.com/gh-nvat/iacguard/src/pkg/settings"
	"github.com/gh-nvat/iacguard/src/pkg/template"
	"github.com/gh-nvat/iacguard/src/pkg/trace"
)

var logger *log.Entry = log.WithFields(log.Fields{
	"package": "run",
})

// errReportFailed signals a completed run whose report did not pass
var errReportFailed = errors.New("report failed")

// createRunner wires the settings, the orchestrator and the rule engine into the runner
// of the selected mode
func createRunner(ctx context.Context, opts *runner.Options) (runner.RunnerInterface, error) {
	logger.WithField("opts", opts).Debug("Creating runner..")

	cfg, err := settings.Load(opts.SettingsPath)
	if err != nil {
		return nil, err
	}
	rules := cfg.ApplyRules(configcheck.DefaultRules())
	evaluator := configcheck.NewRegoEvaluator(opts.PoliciesPath)
	renderer := template.NewRenderer()

	var scanner runner.Scanner
	if opts.ScanEnabled() {
		orch, err := orchestrator.New(orchestrator.Config{
			Env:        opts.Env,
			Binaries:   cfg.Binaries(),
			Timeouts:   cfg.Timeouts(),
			Sequential: opts.Sequential || cfg.Sequential,
		})
		if err != nil {
			return nil, err
		}
		scanner = orch
	}

	switch opts.RunMode {
	case runner.RunModeGitHub:
		ghClient, err := github.NewClient()
		if err != nil {
			return nil, fmt.Errorf("GitHub authentication failed: %w", err)
		}
		r, err := runner.NewRunnerGitHub(ctx, opts, ghClient, scanner, rules, evaluator, renderer)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub runner: %w", err)
		}
		return r, nil
	case runner.RunModeLocal:
		r, err := runner.NewRunnerLocal(ctx, opts, scanner, rules, evaluator, renderer)
		if err != nil {
			return nil, fmt.Errorf("failed to create Local runner: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("invalid run mode: %s", opts.RunMode)
	}
}

func initialize(ctx context.Context, opts *runner.Options) (runner.RunnerInterface, error) {
	r, err := createRunner(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	if err := r.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize runner: %w", err)
	}
	return r, nil
}

func run(ctx context.Context, opts *runner.Options) error {
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger.WithField("opts", opts).Info("Running..")

	// Validate options
	if err := validateOptions(opts); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	// Initialize tracer
	shutdown, err := trace.InitTracer("iacguard", opts.EnableExportPerformanceReport, opts.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdown()

	appRunner, err := initialize(ctx, opts)
	if err != nil {
		return err
	}

	// Fatal tool errors are returned undecorated so callers can errors.As them
	rep, err := appRunner.Process()
	if err != nil {
		return err
	}
	if err := appRunner.Output(rep); err != nil {
		return fmt.Errorf("failed to output report: %w", err)
	}

	if !rep.Passed {
		return fmt.Errorf("%w: %s", errReportFailed, rep.Summary())
	}
	return nil
}

func validateOptions(opts *runner.Options) error {
	// Validate run mode
	if opts.RunMode != runner.RunModeGitHub && opts.RunMode != runner.RunModeLocal {
		return fmt.Errorf("run-mode must be 'github' or 'local', got: %s", opts.RunMode)
	}

	switch opts.OutputFormat {
	case runner.OutputFormatText, runner.OutputFormatJSON, runner.OutputFormatMarkdown:
	default:
		return fmt.Errorf("output must be 'text', 'json' or 'markdown', got: %s", opts.OutputFormat)
	}

	if opts.Target == "" && opts.ConfigPath == "" {
		return fmt.Errorf("nothing to do: provide a target directory or a config file")
	}

	if err := opts.ParseTools(); err != nil {
		return err
	}
	if err := opts.ValidateEnv(); err != nil {
		return err
	}

	if (opts.EnableExportReport || opts.EnableExportPerformanceReport) && opts.OutputDir == "" {
		return fmt.Errorf("--output-dir is required when exporting reports")
	}

	// Chdir tools move the process cwd during the scan; paths resolve against the invocation dir
	for _, p := range []*string{&opts.ConfigPath, &opts.SettingsPath, &opts.PoliciesPath, &opts.TemplatesPath, &opts.OutputDir} {
		if err := absPath(p); err != nil {
			return err
		}
	}

	// Validate mode-specific options
	if opts.RunMode == runner.RunModeGitHub {
		if opts.GhRepo == "" {
			return fmt.Errorf("github mode requires --gh-repo")
		}
		if _, _, err := github.ParseOwnerRepo(opts.GhRepo); err != nil {
			return err
		}
		if opts.GhPrNumber <= 0 {
			return fmt.Errorf("github mode requires --gh-pr-number")
		}
	}

	return nil
}

func absPath(p *string) error {
	if *p == "" {
		return nil
	}
	abs, err := filepath.Abs(*p)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", *p, err)
	}
	*p = abs
	return nil
}
