package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-nvat/iacguard/src/pkg/configcheck"
	"github.com/gh-nvat/iacguard/src/pkg/models"
	"github.com/gh-nvat/iacguard/src/pkg/template"
	"github.com/gh-nvat/iacguard/src/pkg/tools"
)

const validConfigYAML = `aws_region: us-east-1
account_ids:
  management: "123456789012"
  dev: "123456789013"
  staging: "123456789014"
  prod: "123456789015"
notification_email: test@example.com
budget_amounts:
  management: 50
  dev: 25
  staging: 30
  prod: 100
budget_thresholds: [50, 80, 100]
github_repository: testuser/test-repo
`

type fakeScanner struct {
	verdict *models.Verdict
	err     error

	mu        sync.Mutex
	targets   []string
	requested [][]models.Tool
}

func (f *fakeScanner) Scan(_ context.Context, target string, requested []models.Tool) (*models.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.requested = append(f.requested, requested)
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

func cleanVerdict() *models.Verdict {
	return models.NewVerdict([]*models.ToolResult{
		{Tool: models.ToolPolicyScanner, Findings: []models.Finding{}, RanSuccessfully: true},
		{Tool: models.ToolLintChecker, Findings: []models.Finding{}, RanSuccessfully: true},
	})
}

func blockingVerdict() *models.Verdict {
	return models.NewVerdict([]*models.ToolResult{
		{
			Tool:     models.ToolPolicyScanner,
			ExitCode: 1,
			Findings: []models.Finding{{
				Tool:     models.ToolPolicyScanner,
				Severity: models.SeverityCritical,
				RuleID:   "CKV_AWS_20",
				Message:  "S3 Bucket allows public READ access",
				Location: "main.tf:1",
				Blocking: true,
			}},
			RanSuccessfully: true,
		},
	})
}

type fakeGitHubClient struct {
	pr       *models.PullRequest
	prErr    error
	comments []*models.Comment
	nextID   int64
	created  int
	updated  int
}

func (f *fakeGitHubClient) GetPR(_ context.Context, _ string, number int) (*models.PullRequest, error) {
	if f.prErr != nil {
		return nil, f.prErr
	}
	return f.pr, nil
}

func (f *fakeGitHubClient) CreateComment(_ context.Context, _ string, _ int, body string) (*models.Comment, error) {
	f.nextID++
	f.created++
	c := &models.Comment{ID: f.nextID, Body: body}
	f.comments = append(f.comments, c)
	return c, nil
}

func (f *fakeGitHubClient) UpdateComment(_ context.Context, _ string, commentID int64, body string) error {
	for _, c := range f.comments {
		if c.ID == commentID {
			c.Body = body
			f.updated++
			return nil
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (f *fakeGitHubClient) GetComments(_ context.Context, _ string, _ int) ([]*models.Comment, error) {
	return f.comments, nil
}

func (f *fakeGitHubClient) FindToolComment(_ context.Context, _ string, _ int, search string) (*models.Comment, error) {
	for _, c := range f.comments {
		if strings.Contains(c.Body, search) {
			return c, nil
		}
	}
	return nil, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newLocal(t *testing.T, opts *Options, scanner Scanner) (*RunnerLocal, *bytes.Buffer) {
	t.Helper()
	r, err := NewRunnerLocal(context.Background(), opts, scanner,
		configcheck.DefaultRules(), configcheck.NewRegoEvaluator(opts.PoliciesPath), template.NewRenderer())
	require.NoError(t, err)
	var out bytes.Buffer
	r.Stdout = &out
	require.NoError(t, r.Initialize())
	return r, &out
}

func TestProcess_ScanAndConfigPass(t *testing.T) {
	dir := t.TempDir()
	scanner := &fakeScanner{verdict: cleanVerdict()}
	opts := &Options{
		RunMode:    RunModeLocal,
		Target:     "infra",
		ConfigPath: writeFile(t, dir, "config.yaml", validConfigYAML),
		Tools:      []models.Tool{models.ToolPolicyScanner, models.ToolLintChecker},
	}
	r, _ := newLocal(t, opts, scanner)

	rep, err := r.Process()
	require.NoError(t, err)
	assert.True(t, rep.Passed)
	assert.Equal(t, 0, rep.ExitCode())
	assert.Equal(t, "infra", rep.Target)
	assert.Equal(t, opts.ConfigPath, rep.ConfigPath)
	assert.Empty(t, rep.Violations)
	assert.Equal(t, []string{"infra"}, scanner.targets)
	assert.Equal(t, [][]models.Tool{{models.ToolPolicyScanner, models.ToolLintChecker}}, scanner.requested)
}

func TestProcess_ConfigViolationsFailReport(t *testing.T) {
	dir := t.TempDir()
	bad := strings.Replace(validConfigYAML, "prod: 100", "prod: 20", 1)
	opts := &Options{
		RunMode:    RunModeLocal,
		Target:     "infra",
		ConfigPath: writeFile(t, dir, "config.yaml", bad),
	}
	r, _ := newLocal(t, opts, &fakeScanner{verdict: cleanVerdict()})

	rep, err := r.Process()
	require.NoError(t, err)
	assert.False(t, rep.Passed)
	assert.Equal(t, 1, rep.ExitCode())
	assert.Contains(t, rep.ViolatedRules(), configcheck.RuleBudgetOrdering)
	assert.Empty(t, rep.FailedTools())
}

func TestProcess_BlockingFindingsFailReport(t *testing.T) {
	opts := &Options{RunMode: RunModeLocal, Target: "infra"}
	r, _ := newLocal(t, opts, &fakeScanner{verdict: blockingVerdict()})

	rep, err := r.Process()
	require.NoError(t, err)
	assert.False(t, rep.Passed)
	assert.Equal(t, []models.Tool{models.ToolPolicyScanner}, rep.FailedTools())
	assert.Empty(t, rep.Violations)
}

func TestProcess_ValidateConfigOnly(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{
		RunMode:    RunModeLocal,
		ConfigPath: writeFile(t, dir, "config.yaml", validConfigYAML),
	}
	r, _ := newLocal(t, opts, nil)

	rep, err := r.Process()
	require.NoError(t, err)
	assert.True(t, rep.Passed)
	assert.Nil(t, rep.Verdict)
}

func TestProcess_FatalScanErrorIsReturnedAsIs(t *testing.T) {
	fatal := tools.NewToolInvocationError(tools.KindBinaryNotFound, models.ToolSecretScanner, "bandit", nil)
	opts := &Options{RunMode: RunModeLocal, Target: "infra"}
	r, _ := newLocal(t, opts, &fakeScanner{err: fatal})

	rep, err := r.Process()
	assert.Nil(t, rep)
	require.Error(t, err)
	assert.ErrorIs(t, err, tools.ErrBinaryNotFound)

	var invErr *tools.ToolInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Same(t, fatal, invErr)
}

func TestProcess_MissingConfigFile(t *testing.T) {
	opts := &Options{
		RunMode:    RunModeLocal,
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
	}
	r, _ := newLocal(t, opts, nil)

	_, err := r.Process()
	assert.Error(t, err)
}

func TestProcess_CustomPoliciesAppendViolations(t *testing.T) {
	dir := t.TempDir()
	policies := filepath.Join(dir, "policies")
	require.NoError(t, os.MkdirAll(policies, 0o755))
	writeFile(t, policies, "cap.rego", `package iacguard.config

import rego.v1

violation contains v if {
	input.budget_amounts.prod > 90
	v := {"rule_id": "prod_cap", "field": "budget_amounts", "message": "prod budget exceeds 90"}
}
`)
	writeFile(t, policies, "cap_test.rego", `package iacguard.config

import rego.v1

test_prod_cap if {
	count(violation) == 1 with input as {"budget_amounts": {"prod": 100}}
}
`)
	opts := &Options{
		RunMode:      RunModeLocal,
		ConfigPath:   writeFile(t, dir, "config.yaml", validConfigYAML),
		PoliciesPath: policies,
	}
	r, _ := newLocal(t, opts, nil)

	rep, err := r.Process()
	require.NoError(t, err)
	assert.False(t, rep.Passed)
	require.Len(t, rep.Violations, 1)
	assert.Equal(t, models.Violation{RuleID: "prod_cap", Field: "budget_amounts", Message: "prod budget exceeds 90"}, rep.Violations[0])
}

func TestInitialize_RequiresScannerForTarget(t *testing.T) {
	opts := &Options{RunMode: RunModeLocal, Target: "infra"}
	r, err := NewRunnerLocal(context.Background(), opts, nil,
		configcheck.DefaultRules(), configcheck.NewRegoEvaluator(""), template.NewRenderer())
	require.NoError(t, err)
	assert.Error(t, r.Initialize())
}

func TestOutput_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{OutputFormatText, "Result:"},
		{OutputFormatJSON, `"passed": false`},
		{OutputFormatMarkdown, template.Signature("infra")},
		{"", "Result:"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			opts := &Options{RunMode: RunModeLocal, Target: "infra", OutputFormat: tt.format}
			r, out := newLocal(t, opts, &fakeScanner{verdict: blockingVerdict()})

			rep, err := r.Process()
			require.NoError(t, err)
			require.NoError(t, r.Output(rep))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestOutput_ExportReport(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	opts := &Options{
		RunMode:            RunModeLocal,
		Target:             "infra",
		OutputDir:          outDir,
		EnableExportReport: true,
	}
	r, _ := newLocal(t, opts, &fakeScanner{verdict: blockingVerdict()})

	rep, err := r.Process()
	require.NoError(t, err)
	require.NoError(t, r.Output(rep))

	raw, err := os.ReadFile(filepath.Join(outDir, ReportJSONFile))
	require.NoError(t, err)
	var data models.ReportData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.False(t, data.Passed)
	assert.Equal(t, 1, data.ExitCode)
	require.Len(t, data.BlockingFindings, 1)
	assert.Equal(t, "CKV_AWS_20", data.BlockingFindings[0].RuleID)

	md, err := os.ReadFile(filepath.Join(outDir, ReportMarkdownFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), template.Signature("infra"))
}

func TestOutput_ExportDisabledWritesNothing(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	opts := &Options{RunMode: RunModeLocal, Target: "infra", OutputDir: outDir}
	r, _ := newLocal(t, opts, &fakeScanner{verdict: cleanVerdict()})

	rep, err := r.Process()
	require.NoError(t, err)
	require.NoError(t, r.Output(rep))

	_, err = os.Stat(outDir)
	assert.True(t, os.IsNotExist(err))
}

func newGitHub(t *testing.T, opts *Options, gh *fakeGitHubClient, scanner Scanner) *RunnerGitHub {
	t.Helper()
	r, err := NewRunnerGitHub(context.Background(), opts, gh, scanner,
		configcheck.DefaultRules(), configcheck.NewRegoEvaluator(""), template.NewRenderer())
	require.NoError(t, err)
	r.Stdout = &bytes.Buffer{}
	return r
}

func TestRunnerGitHub_UpsertsComment(t *testing.T) {
	gh := &fakeGitHubClient{pr: &models.PullRequest{Number: 7, BaseSHA: "base123", HeadSHA: "head456"}}
	opts := &Options{RunMode: RunModeGitHub, Target: "infra", GhRepo: "org/repo", GhPrNumber: 7}
	r := newGitHub(t, opts, gh, &fakeScanner{verdict: blockingVerdict()})
	require.NoError(t, r.Initialize())

	rep, err := r.Process()
	require.NoError(t, err)
	assert.Equal(t, "base123", rep.BaseCommit)
	assert.Equal(t, "head456", rep.HeadCommit)

	require.NoError(t, r.Output(rep))
	assert.Equal(t, 1, gh.created)
	assert.Equal(t, 0, gh.updated)
	require.Len(t, gh.comments, 1)
	assert.Contains(t, gh.comments[0].Body, template.Signature("infra"))
	assert.Contains(t, gh.comments[0].Body, "head456")

	// a second run updates the same comment
	require.NoError(t, r.Output(rep))
	assert.Equal(t, 1, gh.created)
	assert.Equal(t, 1, gh.updated)
	assert.Len(t, gh.comments, 1)
}

func TestRunnerGitHub_SeparateCommentPerTarget(t *testing.T) {
	gh := &fakeGitHubClient{pr: &models.PullRequest{Number: 7}}
	for _, target := range []string{"infra/network", "infra/iam"} {
		opts := &Options{RunMode: RunModeGitHub, Target: target, GhRepo: "org/repo", GhPrNumber: 7}
		r := newGitHub(t, opts, gh, &fakeScanner{verdict: cleanVerdict()})
		require.NoError(t, r.Initialize())
		rep, err := r.Process()
		require.NoError(t, err)
		require.NoError(t, r.Output(rep))
	}
	assert.Equal(t, 2, gh.created)
	assert.Equal(t, 0, gh.updated)
}

func TestRunnerGitHub_PRLookupFailure(t *testing.T) {
	gh := &fakeGitHubClient{prErr: fmt.Errorf("404 Not Found")}
	opts := &Options{RunMode: RunModeGitHub, Target: "infra", GhRepo: "org/repo", GhPrNumber: 7}
	r := newGitHub(t, opts, gh, &fakeScanner{verdict: cleanVerdict()})

	err := r.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch pull request info")
}

func TestNewRunnerGitHub_RequiresClient(t *testing.T) {
	_, err := NewRunnerGitHub(context.Background(), &Options{}, nil, nil,
		configcheck.DefaultRules(), configcheck.NewRegoEvaluator(""), template.NewRenderer())
	assert.Error(t, err)
}

func TestTruncateComment(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncateComment(short, 100))

	long := strings.Repeat("x", 1000)
	got := truncateComment(long, 500)
	assert.LessOrEqual(t, len(got), 500)
	assert.True(t, strings.HasSuffix(got, commentTruncatedNotice))
}

func TestOptions_ParseTools(t *testing.T) {
	opts := &Options{ToolNames: []string{"checkov", "lint", " "}}
	require.NoError(t, opts.ParseTools())
	assert.Equal(t, []models.Tool{models.ToolPolicyScanner, models.ToolLintChecker}, opts.Tools)

	opts = &Options{ToolNames: []string{"trivy"}}
	assert.Error(t, opts.ParseTools())
}

func TestOptions_ValidateEnv(t *testing.T) {
	assert.NoError(t, (&Options{Env: []string{"AWS_PROFILE=dev", "EMPTY="}}).ValidateEnv())
	assert.Error(t, (&Options{Env: []string{"NOVALUE"}}).ValidateEnv())
	assert.Error(t, (&Options{Env: []string{"=value"}}).ValidateEnv())
}
