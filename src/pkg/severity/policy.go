// Package severity maps each tool's native severity vocabulary onto the canonical scale
// and decides which canonical severities block a scan.
//
// The tables are constant. Adding a tool means adding one row to each table.
//
//	| Tool            | Native                              | Blocking          |
//	|-----------------|-------------------------------------|-------------------|
//	| PolicyScanner   | CRITICAL HIGH MEDIUM LOW INFO       | CRITICAL          |
//	| SyntaxValidator | (none, no findings)                 | (none)            |
//	| SecretScanner   | HIGH MEDIUM LOW UNDEFINED           | HIGH, CRITICAL    |
//	| LintChecker     | error warning notice                | CRITICAL (error)  |
//
// Unknown strings classify as INFO and never block.
package severity

import (
	"sort"
	"strings"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

type toolPolicy struct {
	vocabulary map[string]models.Severity
	blocking   map[models.Severity]bool
}

var policies = map[models.Tool]toolPolicy{
	models.ToolPolicyScanner: {
		vocabulary: map[string]models.Severity{
			"critical": models.SeverityCritical,
			"high":     models.SeverityHigh,
			"medium":   models.SeverityMedium,
			"low":      models.SeverityLow,
			"info":     models.SeverityInfo,
		},
		blocking: map[models.Severity]bool{
			models.SeverityCritical: true,
		},
	},
	models.ToolSyntaxValidator: {
		vocabulary: map[string]models.Severity{},
		blocking:   map[models.Severity]bool{},
	},
	models.ToolSecretScanner: {
		vocabulary: map[string]models.Severity{
			"high":      models.SeverityHigh,
			"medium":    models.SeverityMedium,
			"low":       models.SeverityLow,
			"undefined": models.SeverityInfo,
		},
		blocking: map[models.Severity]bool{
			models.SeverityHigh:     true,
			models.SeverityCritical: true,
		},
	},
	models.ToolLintChecker: {
		vocabulary: map[string]models.Severity{
			"error":   models.SeverityCritical,
			"warning": models.SeverityMedium,
			"notice":  models.SeverityLow,
		},
		blocking: map[models.Severity]bool{
			models.SeverityCritical: true,
		},
	},
}

// Classify maps a native severity string to the canonical scale and reports whether
// a finding of that severity blocks the scan for this tool.
func Classify(tool models.Tool, native string) (models.Severity, bool) {
	policy, ok := policies[tool]
	if !ok {
		return models.SeverityInfo, false
	}
	sev, ok := policy.vocabulary[strings.ToLower(strings.TrimSpace(native))]
	if !ok {
		sev = models.SeverityInfo
	}
	return sev, policy.blocking[sev]
}

// IsBlocking reports whether a canonical severity blocks for the tool
func IsBlocking(tool models.Tool, sev models.Severity) bool {
	policy, ok := policies[tool]
	if !ok {
		return false
	}
	return policy.blocking[sev]
}

// BlockingSeverities lists the blocking severities of a tool, highest first
func BlockingSeverities(tool models.Tool) []models.Severity {
	policy, ok := policies[tool]
	if !ok {
		return nil
	}
	out := make([]models.Severity, 0, len(policy.blocking))
	for sev, blocks := range policy.blocking {
		if blocks {
			out = append(out, sev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}
