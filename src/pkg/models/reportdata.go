package models

import "time"

// ReportData represents the complete report data structure
type ReportData struct {
	Timestamp time.Time `json:"timestamp"`

	// Target is the scanned directory, empty when only the config was validated
	Target     string `json:"target,omitempty"`
	ConfigPath string `json:"configPath,omitempty"`

	// Commits are only known in github mode
	BaseCommit string `json:"baseCommit,omitempty"`
	HeadCommit string `json:"headCommit,omitempty"`

	Passed   bool `json:"passed"`
	ExitCode int  `json:"exitCode"`

	// Tool results in invocation order
	Tools            []ToolSummary `json:"tools"`
	BlockingFindings []Finding     `json:"blockingFindings"`
	FailedTools      []Tool        `json:"failedTools"`

	// Config violations in rule declaration order
	Violations    []Violation `json:"violations"`
	ViolatedRules []string    `json:"violatedRules"`
}

// ToolSummary represents the outcome of a single tool in the report
type ToolSummary struct {
	Tool            Tool   `json:"tool"`
	Name            string `json:"name"`
	ExitCode        int    `json:"exitCode"`
	RanSuccessfully bool   `json:"ranSuccessfully"`
	FindingCount    int    `json:"findingCount"`
	BlockingCount   int    `json:"blockingCount"`
	DurationMs      int64  `json:"durationMs"`

	// Counts per canonical severity name
	SeverityCounts map[string]int `json:"severityCounts"`
}

// PullRequest is the subset of pull request information used by the github runner
type PullRequest struct {
	Number  int
	BaseRef string
	BaseSHA string
	HeadRef string
	HeadSHA string
}

// Comment is a pull request comment
type Comment struct {
	ID   int64
	Body string
}
