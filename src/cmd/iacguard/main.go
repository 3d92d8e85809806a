package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gh-nvat/iacguard/src/internal/runner"
)

const (
	exitCodePassed = 0
	exitCodeFailed = 1
	exitCodeError  = 2
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := exitCode(newRootCmd().ExecuteContext(ctx))
	stop()
	os.Exit(code)
}

// exitCode maps the command result: 1 when the report failed, 2 for any pipeline error
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitCodePassed
	case errors.Is(err, errReportFailed):
		return exitCodeFailed
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeError
	}
}

// newRootCmd creates the root command, parse args from CLI
func newRootCmd() *cobra.Command {
	opts := &runner.Options{}

	cmd := &cobra.Command{
		Use:   "iacguard",
		Short: "Infrastructure-as-code quality gate",
		Long: `iacguard runs security and quality analyzers (checkov, terraform validate, bandit, tflint)
against an infrastructure directory, checks the organizational configuration against business
rules, and merges both into a single pass/fail verdict.

Exit codes: 0 passed, 1 failed, 2 pipeline error.`,
		Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Common flags
	cmd.PersistentFlags().StringVar(&opts.RunMode, "run-mode", runner.RunModeLocal, "Run mode: github or local")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Debug mode")
	cmd.PersistentFlags().StringVar(&opts.SettingsPath, "settings", "",
		"Path to the settings file (rule parameters, tool binaries and timeouts)")
	cmd.PersistentFlags().StringVar(&opts.PoliciesPath, "policies-path", "",
		"Path to a directory of custom Rego rules evaluated against the config (each policy needs a _test.rego)")
	cmd.PersistentFlags().StringVar(&opts.TemplatesPath, "templates-path", "",
		"Path to a directory overriding the Markdown report templates")
	cmd.PersistentFlags().StringVar(&opts.OutputFormat, "output", runner.OutputFormatText,
		"Stdout format: text, json or markdown")
	cmd.PersistentFlags().StringVar(&opts.OutputDir, "output-dir", "./output",
		"Output directory in case the tool need to export files")
	cmd.PersistentFlags().BoolVar(&opts.EnableExportReport, "enable-export-report", false,
		"Enable export report (report.json and report.md to output dir)")
	cmd.PersistentFlags().BoolVar(&opts.EnableExportPerformanceReport, "enable-export-performance-report", false,
		"Enable export performance report (performance.json and metrics.json to output dir)")

	// GitHub mode flags
	cmd.PersistentFlags().StringVar(&opts.GhRepo, "gh-repo", "",
		"GitHub repository (e.g., org/repo) [github mode]")
	cmd.PersistentFlags().IntVar(&opts.GhPrNumber, "gh-pr-number", 0,
		"GitHub PR number [github mode]")

	cmd.AddCommand(newScanCmd(opts), newValidateConfigCmd(opts))
	return cmd
}

func newScanCmd(opts *runner.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <target_path>",
		Short: "Run the analyzers against a directory, optionally checking a config file too",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Target = args[0]
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.ToolNames, "tools", nil,
		"Tools to run (comma-separated: policy, syntax, secrets, lint), default all")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "",
		"Config file (.yaml, .yml, .json, .tfvars, .hcl) to check against the business rules")
	cmd.Flags().StringArrayVar(&opts.Env, "env", nil,
		"Extra KEY=VALUE environment variable for the analyzers, repeatable")
	cmd.Flags().BoolVar(&opts.Sequential, "sequential", false, "Run the analyzers one at a time")
	return cmd
}

func newValidateConfigCmd(opts *runner.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config <file>",
		Short: "Check a config file against the business rules only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = args[0]
			return run(cmd.Context(), opts)
		},
	}
}
