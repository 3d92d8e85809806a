// Package report merges a scan Verdict and config Violations into the final pass/fail
// outcome and renders it.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gh-nvat/iacguard/src/pkg/configcheck"
	"github.com/gh-nvat/iacguard/src/pkg/models"
)

var logger = log.WithField("package", "report")

const (
	ExitCodePassed = 0
	ExitCodeFailed = 1
)

// Report is the merged outcome of one pipeline run. Either half may be absent:
// Verdict is nil when only the config was validated.
type Report struct {
	Verdict    *models.Verdict
	Violations []models.Violation
	Passed     bool

	Target     string
	ConfigPath string
	BaseCommit string
	HeadCommit string
	Timestamp  time.Time
}

// Build merges verdict and violations. Violations are reordered by rule declaration,
// stable within a rule; custom rules come last.
func Build(verdict *models.Verdict, violations []models.Violation) *Report {
	ordered := make([]models.Violation, len(violations))
	copy(ordered, violations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return configcheck.RuleIndex(ordered[i].RuleID) < configcheck.RuleIndex(ordered[j].RuleID)
	})

	passed := len(ordered) == 0
	if verdict != nil && !verdict.Passed {
		passed = false
	}
	return &Report{
		Verdict:    verdict,
		Violations: ordered,
		Passed:     passed,
		Timestamp:  time.Now().UTC(),
	}
}

// ExitCode maps the outcome to a process exit code. It never exits.
func (r *Report) ExitCode() int {
	if r.Passed {
		return ExitCodePassed
	}
	return ExitCodeFailed
}

// FailedTools lists tools that did not run successfully or produced blocking findings,
// in invocation order
func (r *Report) FailedTools() []models.Tool {
	out := []models.Tool{}
	if r.Verdict == nil {
		return out
	}
	for _, result := range r.Verdict.OrderedResults() {
		if !result.RanSuccessfully || len(result.BlockingFindings()) > 0 {
			out = append(out, result.Tool)
		}
	}
	return out
}

// ViolatedRules lists distinct violated rule ids in declaration order
func (r *Report) ViolatedRules() []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, v := range r.Violations {
		if !seen[v.RuleID] {
			seen[v.RuleID] = true
			out = append(out, v.RuleID)
		}
	}
	return out
}

// Summary is a one-line description of the outcome
func (r *Report) Summary() string {
	if r.Passed {
		return "PASSED"
	}
	var parts []string
	if tools := r.FailedTools(); len(tools) > 0 {
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.DisplayName()
		}
		parts = append(parts, "failing tools: "+strings.Join(names, ", "))
	}
	if rules := r.ViolatedRules(); len(rules) > 0 {
		parts = append(parts, "violated rules: "+strings.Join(rules, ", "))
	}
	return "FAILED (" + strings.Join(parts, "; ") + ")"
}

// Data flattens the report for serialization and templates
func (r *Report) Data() models.ReportData {
	data := models.ReportData{
		Timestamp:        r.Timestamp,
		Target:           r.Target,
		ConfigPath:       r.ConfigPath,
		BaseCommit:       r.BaseCommit,
		HeadCommit:       r.HeadCommit,
		Passed:           r.Passed,
		ExitCode:         r.ExitCode(),
		Tools:            []models.ToolSummary{},
		BlockingFindings: []models.Finding{},
		FailedTools:      r.FailedTools(),
		Violations:       r.Violations,
		ViolatedRules:    r.ViolatedRules(),
	}
	if data.Violations == nil {
		data.Violations = []models.Violation{}
	}
	if r.Verdict == nil {
		return data
	}

	data.BlockingFindings = r.Verdict.BlockingFindings
	for _, result := range r.Verdict.OrderedResults() {
		counts := make(map[string]int)
		for _, f := range result.Findings {
			counts[f.Severity.String()]++
		}
		data.Tools = append(data.Tools, models.ToolSummary{
			Tool:            result.Tool,
			Name:            result.Tool.DisplayName(),
			ExitCode:        result.ExitCode,
			RanSuccessfully: result.RanSuccessfully,
			FindingCount:    len(result.Findings),
			BlockingCount:   len(result.BlockingFindings()),
			DurationMs:      result.Duration.Milliseconds(),
			SeverityCounts:  counts,
		})
	}
	return data
}

// RenderJSON writes the report data as indented JSON
func (r *Report) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Data()); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// RenderText writes a human readable summary with aligned tables
func (r *Report) RenderText(w io.Writer) error {
	logger.Debug("RenderText: starting...")
	data := r.Data()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if data.Target != "" {
		fmt.Fprintf(tw, "Target:\t%s\n", data.Target)
	}
	if data.ConfigPath != "" {
		fmt.Fprintf(tw, "Config:\t%s\n", data.ConfigPath)
	}

	if len(data.Tools) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TOOL\tEXIT\tSTATUS\tFINDINGS\tBLOCKING\tDURATION")
		for _, t := range data.Tools {
			status := "ok"
			if !t.RanSuccessfully {
				status = "FAILED"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%dms\n", t.Name, t.ExitCode, status, t.FindingCount, t.BlockingCount, t.DurationMs)
		}
	}

	if len(data.BlockingFindings) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "BLOCKING FINDINGS")
		fmt.Fprintln(tw, "TOOL\tSEVERITY\tRULE\tLOCATION\tMESSAGE")
		for _, f := range data.BlockingFindings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Tool.DisplayName(), f.Severity, f.RuleID, orDash(f.Location), f.Message)
		}
	}

	if len(data.Violations) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "CONFIG VIOLATIONS")
		fmt.Fprintln(tw, "RULE\tFIELD\tMESSAGE")
		for _, v := range data.Violations {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", v.RuleID, orDash(v.Field), v.Message)
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Result:\t%s\n", r.Summary())
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
