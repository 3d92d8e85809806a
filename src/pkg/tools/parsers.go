package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NativeFinding is a finding as the tool reported it, before severity classification
type NativeFinding struct {
	RuleID   string
	Severity string
	Message  string
	Location string
}

// Parser turns a tool's stdout into native findings
type Parser func(data []byte) ([]NativeFinding, error)

func formatLocation(file string, line int) string {
	if file == "" {
		return ""
	}
	if line > 0 {
		return fmt.Sprintf("%s:%d", file, line)
	}
	return file
}

// =============================================================================
// CHECKOV
// =============================================================================

// Sample checkov -o json output (single framework):
//
//	{
//	  "check_type": "terraform",
//	  "results": {
//	    "failed_checks": [
//	      {
//	        "check_id": "CKV_AWS_20",
//	        "check_name": "S3 Bucket has an ACL defined which allows public READ access.",
//	        "severity": "CRITICAL",
//	        "file_path": "/main.tf",
//	        "file_line_range": [1, 8],
//	        "resource": "aws_s3_bucket.logs"
//	      }
//	    ]
//	  }
//	}
//
// With several frameworks the output is an array of such objects. Without any
// scannable files checkov prints a summary object with no "results" key.
type checkovReport struct {
	CheckType string `json:"check_type"`
	Results   struct {
		FailedChecks []checkovCheck `json:"failed_checks"`
	} `json:"results"`
}

type checkovCheck struct {
	CheckID       string  `json:"check_id"`
	CheckName     string  `json:"check_name"`
	Severity      *string `json:"severity"` // null without a platform API key
	FilePath      string  `json:"file_path"`
	FileLineRange []int   `json:"file_line_range"`
	Resource      string  `json:"resource"`
	Guideline     string  `json:"guideline"`
}

func parseCheckovOutput(data []byte) ([]NativeFinding, error) {
	var reports []checkovReport
	switch firstByte(data) {
	case '[':
		if err := json.Unmarshal(data, &reports); err != nil {
			return nil, fmt.Errorf("parsing checkov output: %w", err)
		}
	case '{':
		var report checkovReport
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("parsing checkov output: %w", err)
		}
		reports = []checkovReport{report}
	default:
		return nil, errors.New("parsing checkov output: expected a JSON object or array")
	}

	var out []NativeFinding
	for _, report := range reports {
		for _, check := range report.Results.FailedChecks {
			sev := ""
			if check.Severity != nil {
				sev = *check.Severity
			}
			line := 0
			if len(check.FileLineRange) > 0 {
				line = check.FileLineRange[0]
			}
			msg := check.CheckName
			if check.Resource != "" {
				msg = fmt.Sprintf("%s (%s)", msg, check.Resource)
			}
			out = append(out, NativeFinding{
				RuleID:   check.CheckID,
				Severity: sev,
				Message:  msg,
				Location: formatLocation(strings.TrimPrefix(check.FilePath, "/"), line),
			})
		}
	}
	return out, nil
}

// =============================================================================
// BANDIT
// =============================================================================

// Sample bandit -f json output:
//
//	{
//	  "errors": [],
//	  "results": [
//	    {
//	      "filename": "tests/conftest.py",
//	      "issue_severity": "LOW",
//	      "issue_confidence": "MEDIUM",
//	      "issue_text": "Possible hardcoded password: 'testing'",
//	      "line_number": 12,
//	      "test_id": "B105",
//	      "test_name": "hardcoded_password_string"
//	    }
//	  ]
//	}
type banditReport struct {
	Errors []struct {
		Filename string `json:"filename"`
		Reason   string `json:"reason"`
	} `json:"errors"`
	Results []banditIssue `json:"results"`
}

type banditIssue struct {
	Filename        string `json:"filename"`
	IssueSeverity   string `json:"issue_severity"`
	IssueConfidence string `json:"issue_confidence"`
	IssueText       string `json:"issue_text"`
	LineNumber      int    `json:"line_number"`
	TestID          string `json:"test_id"`
	TestName        string `json:"test_name"`
	MoreInfo        string `json:"more_info"`
}

func parseBanditOutput(data []byte) ([]NativeFinding, error) {
	if firstByte(data) != '{' {
		return nil, errors.New("parsing bandit output: expected a JSON object")
	}
	var report banditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing bandit output: %w", err)
	}
	for _, e := range report.Errors {
		logger.WithField("file", e.Filename).WithField("reason", e.Reason).Warn("bandit could not scan file")
	}

	out := make([]NativeFinding, 0, len(report.Results))
	for _, issue := range report.Results {
		msg := issue.IssueText
		if issue.TestName != "" {
			msg = fmt.Sprintf("%s: %s", issue.TestName, issue.IssueText)
		}
		out = append(out, NativeFinding{
			RuleID:   issue.TestID,
			Severity: issue.IssueSeverity,
			Message:  msg,
			Location: formatLocation(issue.Filename, issue.LineNumber),
		})
	}
	return out, nil
}

// =============================================================================
// TFLINT
// =============================================================================

// Sample tflint --format=json output:
//
//	{
//	  "issues": [
//	    {
//	      "rule": {"name": "terraform_unused_declarations", "severity": "warning", "link": "..."},
//	      "message": "variable \"region\" is declared but not used",
//	      "range": {"filename": "variables.tf", "start": {"line": 1, "column": 1}}
//	    }
//	  ],
//	  "errors": []
//	}
type tflintReport struct {
	Issues []tflintIssue `json:"issues"`
	Errors []tflintError `json:"errors"`
}

type tflintIssue struct {
	Rule struct {
		Name     string `json:"name"`
		Severity string `json:"severity"`
		Link     string `json:"link"`
	} `json:"rule"`
	Message string      `json:"message"`
	Range   tflintRange `json:"range"`
}

type tflintError struct {
	Summary  string       `json:"summary"`
	Message  string       `json:"message"`
	Severity string       `json:"severity"`
	Range    *tflintRange `json:"range"`
}

type tflintRange struct {
	Filename string `json:"filename"`
	Start    struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"start"`
}

func parseTflintOutput(data []byte) ([]NativeFinding, error) {
	if firstByte(data) != '{' {
		return nil, errors.New("parsing tflint output: expected a JSON object")
	}
	var report tflintReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing tflint output: %w", err)
	}

	out := make([]NativeFinding, 0, len(report.Issues)+len(report.Errors))
	for _, issue := range report.Issues {
		out = append(out, NativeFinding{
			RuleID:   issue.Rule.Name,
			Severity: issue.Rule.Severity,
			Message:  issue.Message,
			Location: formatLocation(issue.Range.Filename, issue.Range.Start.Line),
		})
	}
	for _, e := range report.Errors {
		loc := ""
		if e.Range != nil {
			loc = formatLocation(e.Range.Filename, e.Range.Start.Line)
		}
		msg := e.Message
		if e.Summary != "" {
			msg = e.Summary
		}
		out = append(out, NativeFinding{
			RuleID:   "tflint_error",
			Severity: e.Severity,
			Message:  msg,
			Location: loc,
		})
	}
	return out, nil
}

func firstByte(data []byte) byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
