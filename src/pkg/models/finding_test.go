package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTool(t *testing.T) {
	tests := []struct {
		input   string
		want    Tool
		wantErr bool
	}{
		{"policy", ToolPolicyScanner, false},
		{"checkov", ToolPolicyScanner, false},
		{"Terraform", ToolSyntaxValidator, false},
		{" bandit ", ToolSecretScanner, false},
		{"tflint", ToolLintChecker, false},
		{"trivy", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTool(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverity_Ordering(t *testing.T) {
	assert.Less(t, SeverityInfo, SeverityLow)
	assert.Less(t, SeverityLow, SeverityMedium)
	assert.Less(t, SeverityMedium, SeverityHigh)
	assert.Less(t, SeverityHigh, SeverityCritical)
	assert.Equal(t, "UNKNOWN", Severity(42).String())
}

func TestSeverity_JSON(t *testing.T) {
	b, err := json.Marshal(Finding{Tool: ToolSecretScanner, Severity: SeverityHigh, RuleID: "B105"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"severity":"HIGH"`)

	var f Finding
	require.NoError(t, json.Unmarshal([]byte(`{"severity":"critical"}`), &f))
	assert.Equal(t, SeverityCritical, f.Severity)
	require.NoError(t, json.Unmarshal([]byte(`{"severity":"bogus"}`), &f))
	assert.Equal(t, SeverityInfo, f.Severity)
}

func TestNewVerdict(t *testing.T) {
	policy := &ToolResult{
		Tool:            ToolPolicyScanner,
		ExitCode:        1,
		RanSuccessfully: true,
		Findings: []Finding{
			{Tool: ToolPolicyScanner, RuleID: "CKV_AWS_1", Severity: SeverityCritical, Blocking: true},
			{Tool: ToolPolicyScanner, RuleID: "CKV_AWS_2", Severity: SeverityLow},
			{Tool: ToolPolicyScanner, RuleID: "CKV_AWS_3", Severity: SeverityCritical, Blocking: true},
		},
	}
	secrets := &ToolResult{
		Tool:            ToolSecretScanner,
		RanSuccessfully: true,
		Findings: []Finding{
			{Tool: ToolSecretScanner, RuleID: "B105", Severity: SeverityHigh, Blocking: true},
		},
	}

	t.Run("blocking findings keep tool then parse order", func(t *testing.T) {
		v := NewVerdict([]*ToolResult{policy, secrets})
		require.Len(t, v.BlockingFindings, 3)
		assert.Equal(t, "CKV_AWS_1", v.BlockingFindings[0].RuleID)
		assert.Equal(t, "CKV_AWS_3", v.BlockingFindings[1].RuleID)
		assert.Equal(t, "B105", v.BlockingFindings[2].RuleID)
		assert.False(t, v.Passed)
		assert.Equal(t, []Tool{ToolPolicyScanner, ToolSecretScanner}, v.ToolOrder)
	})

	t.Run("healthy tools without findings pass", func(t *testing.T) {
		v := NewVerdict([]*ToolResult{
			{Tool: ToolSyntaxValidator, RanSuccessfully: true},
			{Tool: ToolLintChecker, ExitCode: 2, RanSuccessfully: true},
		})
		assert.True(t, v.Passed)
		assert.Empty(t, v.BlockingFindings)
		assert.Empty(t, v.FailedTools())
	})

	t.Run("unaccepted exit code fails without findings", func(t *testing.T) {
		v := NewVerdict([]*ToolResult{
			{Tool: ToolSyntaxValidator, ExitCode: 1, RanSuccessfully: false},
		})
		assert.False(t, v.Passed)
		assert.Empty(t, v.BlockingFindings)
		assert.Equal(t, []Tool{ToolSyntaxValidator}, v.FailedTools())
	})

	t.Run("empty scan passes", func(t *testing.T) {
		v := NewVerdict(nil)
		assert.True(t, v.Passed)
		assert.Empty(t, v.OrderedResults())
	})
}
