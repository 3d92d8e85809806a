package models

import (
	"fmt"
	"strings"
	"time"
)

// Tool identifies one of the external analyzers run by the orchestrator
type Tool string

const (
	ToolPolicyScanner   Tool = "policy"
	ToolSyntaxValidator Tool = "syntax"
	ToolSecretScanner   Tool = "secrets"
	ToolLintChecker     Tool = "lint"
)

// AllTools is the default invocation order of a scan
var AllTools = []Tool{
	ToolPolicyScanner,
	ToolSyntaxValidator,
	ToolSecretScanner,
	ToolLintChecker,
}

var toolAliases = map[string]Tool{
	"policy":    ToolPolicyScanner,
	"checkov":   ToolPolicyScanner,
	"syntax":    ToolSyntaxValidator,
	"terraform": ToolSyntaxValidator,
	"secrets":   ToolSecretScanner,
	"secret":    ToolSecretScanner,
	"bandit":    ToolSecretScanner,
	"lint":      ToolLintChecker,
	"tflint":    ToolLintChecker,
}

// ParseTool resolves a tool name or one of its binary aliases (e.g. "checkov")
func ParseTool(name string) (Tool, error) {
	if t, ok := toolAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown tool %q", name)
}

// DisplayName returns the human readable role of the tool
func (t Tool) DisplayName() string {
	switch t {
	case ToolPolicyScanner:
		return "PolicyScanner"
	case ToolSyntaxValidator:
		return "SyntaxValidator"
	case ToolSecretScanner:
		return "SecretScanner"
	case ToolLintChecker:
		return "LintChecker"
	default:
		return string(t)
	}
}

// Severity is the canonical, ordered severity scale shared by every tool
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the severity by name in JSON reports
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a canonical severity name. Unknown names become INFO.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "CRITICAL":
		*s = SeverityCritical
	case "HIGH":
		*s = SeverityHigh
	case "MEDIUM":
		*s = SeverityMedium
	case "LOW":
		*s = SeverityLow
	default:
		*s = SeverityInfo
	}
	return nil
}

// Finding is a single issue reported by an analyzer, normalized to the canonical shape.
// Findings are values and are never modified after an adapter creates them.
type Finding struct {
	Tool     Tool     `json:"tool"`
	Severity Severity `json:"severity"`
	RuleID   string   `json:"ruleId"`
	Message  string   `json:"message"`
	Location string   `json:"location,omitempty"`
	Blocking bool     `json:"blocking"`
}

// ToolResult is the outcome of one adapter run.
// RanSuccessfully only reflects tool health (accepted exit code), not whether findings exist.
type ToolResult struct {
	Tool            Tool          `json:"tool"`
	ExitCode        int           `json:"exitCode"`
	Findings        []Finding     `json:"findings"`
	RawOutput       string        `json:"rawOutput,omitempty"`
	Stderr          string        `json:"stderr,omitempty"`
	RanSuccessfully bool          `json:"ranSuccessfully"`
	Duration        time.Duration `json:"duration"`
}

// BlockingFindings returns the blocking findings in parse order
func (r *ToolResult) BlockingFindings() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Blocking {
			out = append(out, f)
		}
	}
	return out
}

// Verdict aggregates the tool results of one scan
type Verdict struct {
	BlockingFindings []Finding            `json:"blockingFindings"`
	ToolResults      map[Tool]*ToolResult `json:"toolResults"`
	ToolOrder        []Tool               `json:"toolOrder"`
	Passed           bool                 `json:"passed"`
}

// NewVerdict aggregates results given in invocation order.
// Blocking findings keep tool order first, then parse order within each tool.
func NewVerdict(results []*ToolResult) *Verdict {
	v := &Verdict{
		BlockingFindings: []Finding{},
		ToolResults:      make(map[Tool]*ToolResult, len(results)),
		ToolOrder:        make([]Tool, 0, len(results)),
		Passed:           true,
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		v.ToolOrder = append(v.ToolOrder, r.Tool)
		v.ToolResults[r.Tool] = r
		v.BlockingFindings = append(v.BlockingFindings, r.BlockingFindings()...)
		if !r.RanSuccessfully {
			v.Passed = false
		}
	}
	if len(v.BlockingFindings) > 0 {
		v.Passed = false
	}
	return v
}

// FailedTools returns, in invocation order, the tools whose exit code was not accepted
func (v *Verdict) FailedTools() []Tool {
	var out []Tool
	for _, t := range v.ToolOrder {
		if r := v.ToolResults[t]; r != nil && !r.RanSuccessfully {
			out = append(out, t)
		}
	}
	return out
}

// OrderedResults returns the tool results in invocation order
func (v *Verdict) OrderedResults() []*ToolResult {
	out := make([]*ToolResult, 0, len(v.ToolOrder))
	for _, t := range v.ToolOrder {
		if r := v.ToolResults[t]; r != nil {
			out = append(out, r)
		}
	}
	return out
}
