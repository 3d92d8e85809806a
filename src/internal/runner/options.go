package runner

import (
	"fmt"
	"strings"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

const (
	RunModeGitHub = "github"
	RunModeLocal  = "local"
)

// Stdout formats
const (
	OutputFormatText     = "text"
	OutputFormatJSON     = "json"
	OutputFormatMarkdown = "markdown"
)

const (
	ReportJSONFile     = "report.json"
	ReportMarkdownFile = "report.md"
)

type Options struct {
	// Run mode
	RunMode string // "github" or "local"
	Debug   bool   // Debug mode

	// Scan target directory, empty for validate-config
	Target string
	// ConfigObject file checked by the rule engine, optional for scan
	ConfigPath string

	// Tool names as given on the command line, empty means all
	ToolNames []string
	// Env holds extra KEY=VALUE pairs for the analyzer subprocesses
	Env        []string
	Sequential bool

	// Common options
	SettingsPath                  string
	PoliciesPath                  string
	TemplatesPath                 string
	OutputDir                     string
	OutputFormat                  string
	EnableExportReport            bool
	EnableExportPerformanceReport bool

	// GitHub mode options
	GhRepo     string
	GhPrNumber int

	// Computed from ToolNames
	Tools []models.Tool
}

// ParseTools resolves ToolNames into Tools. Duplicates are left for the orchestrator to reject.
func (o *Options) ParseTools() error {
	o.Tools = nil
	for _, name := range o.ToolNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		tool, err := models.ParseTool(name)
		if err != nil {
			return err
		}
		o.Tools = append(o.Tools, tool)
	}
	return nil
}

// ValidateEnv checks every extra environment entry has the KEY=VALUE shape
func (o *Options) ValidateEnv() error {
	for _, kv := range o.Env {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --env entry %q, expected KEY=VALUE", kv)
		}
	}
	return nil
}

// ScanEnabled reports whether the analyzers run at all
func (o *Options) ScanEnabled() bool {
	return o.Target != ""
}
