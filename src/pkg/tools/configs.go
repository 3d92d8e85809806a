package tools

import (
	"time"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

// OutputMode states how strictly a tool's stdout must be JSON
type OutputMode int

const (
	// OutputNone: stdout is ignored, the tool reports through its exit code only
	OutputNone OutputMode = iota
	// OutputJSONRequired: unparsable non-empty stdout is a MalformedOutput error
	OutputJSONRequired
	// OutputJSONTolerant: unparsable stdout falls back to exit-code-only
	OutputJSONTolerant
)

// Spec is the invocation contract of one analyzer
type Spec struct {
	Tool   models.Tool
	Binary string

	// Args builds the argument vector for a target directory
	Args func(target string) []string

	// ChangeDir runs the tool with the target as working directory
	ChangeDir bool

	AcceptedExitCodes []int
	Output            OutputMode
	Parse             Parser

	// Timeout of zero means DefaultTimeout
	Timeout time.Duration
}

// Accepts reports whether an exit code means the tool ran to completion
func (s Spec) Accepts(code int) bool {
	for _, c := range s.AcceptedExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Table of supported analyzers:
//
//	| Tool    | Binary    | Args                                                   | Chdir | Accepted | Output   |
//	|---------|-----------|--------------------------------------------------------|-------|----------|----------|
//	| policy  | checkov   | -d <target> --framework terraform --output json --quiet | no    | 0, 1     | required |
//	| syntax  | terraform | validate                                               | yes   | 0        | none     |
//	| secrets | bandit    | -r <target> -f json                                    | no    | 0, 1     | required |
//	| lint    | tflint    | --format=json                                          | yes   | 0, 2     | tolerant |
var defaultSpecs = map[models.Tool]Spec{
	models.ToolPolicyScanner: {
		Tool:   models.ToolPolicyScanner,
		Binary: "checkov",
		Args: func(target string) []string {
			return []string{"-d", target, "--framework", "terraform", "--output", "json", "--quiet"}
		},
		AcceptedExitCodes: []int{0, 1},
		Output:            OutputJSONRequired,
		Parse:             parseCheckovOutput,
	},
	models.ToolSyntaxValidator: {
		Tool:   models.ToolSyntaxValidator,
		Binary: "terraform",
		Args: func(string) []string {
			return []string{"validate"}
		},
		ChangeDir:         true,
		AcceptedExitCodes: []int{0},
		Output:            OutputNone,
	},
	models.ToolSecretScanner: {
		Tool:   models.ToolSecretScanner,
		Binary: "bandit",
		Args: func(target string) []string {
			return []string{"-r", target, "-f", "json"}
		},
		AcceptedExitCodes: []int{0, 1},
		Output:            OutputJSONRequired,
		Parse:             parseBanditOutput,
	},
	models.ToolLintChecker: {
		Tool:   models.ToolLintChecker,
		Binary: "tflint",
		Args: func(string) []string {
			return []string{"--format=json"}
		},
		ChangeDir:         true,
		AcceptedExitCodes: []int{0, 2},
		Output:            OutputJSONTolerant,
		Parse:             parseTflintOutput,
	},
}

// DefaultSpec returns a copy of the built-in spec of a tool
func DefaultSpec(tool models.Tool) (Spec, bool) {
	spec, ok := defaultSpecs[tool]
	if !ok {
		return Spec{}, false
	}
	spec.AcceptedExitCodes = append([]int(nil), spec.AcceptedExitCodes...)
	return spec, true
}
