package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCheckovOutput(t *testing.T) {
	t.Run("single framework object", func(t *testing.T) {
		output := []byte(`{
			"check_type": "terraform",
			"results": {
				"passed_checks": [],
				"failed_checks": [
					{
						"check_id": "CKV_AWS_20",
						"check_name": "S3 Bucket allows public READ access",
						"severity": "CRITICAL",
						"file_path": "/main.tf",
						"file_line_range": [3, 9],
						"resource": "aws_s3_bucket.logs"
					},
					{
						"check_id": "CKV_AWS_18",
						"check_name": "Ensure the S3 bucket has access logging enabled",
						"severity": null,
						"file_path": "/main.tf",
						"file_line_range": [3, 9],
						"resource": "aws_s3_bucket.logs"
					}
				]
			}
		}`)

		findings, err := parseCheckovOutput(output)
		require.NoError(t, err)
		require.Len(t, findings, 2)

		assert.Equal(t, "CKV_AWS_20", findings[0].RuleID)
		assert.Equal(t, "CRITICAL", findings[0].Severity)
		assert.Equal(t, "main.tf:3", findings[0].Location)
		assert.Contains(t, findings[0].Message, "aws_s3_bucket.logs")

		// null severity is passed through empty and classified later
		assert.Equal(t, "", findings[1].Severity)
	})

	t.Run("multi framework array", func(t *testing.T) {
		output := []byte(`[
			{"check_type": "terraform", "results": {"failed_checks": [{"check_id": "A", "severity": "HIGH"}]}},
			{"check_type": "secrets", "results": {"failed_checks": [{"check_id": "B", "severity": "LOW"}]}}
		]`)

		findings, err := parseCheckovOutput(output)
		require.NoError(t, err)
		require.Len(t, findings, 2)
		assert.Equal(t, "A", findings[0].RuleID)
		assert.Equal(t, "B", findings[1].RuleID)
	})

	t.Run("summary only", func(t *testing.T) {
		output := []byte(`{"passed": 0, "failed": 0, "skipped": 0, "parsing_errors": 0, "resource_count": 0, "checkov_version": "3.2.0"}`)
		findings, err := parseCheckovOutput(output)
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := parseCheckovOutput([]byte("checkov crashed"))
		assert.Error(t, err)
	})

	t.Run("truncated json", func(t *testing.T) {
		_, err := parseCheckovOutput([]byte(`{"results": {"failed_checks": [`))
		assert.Error(t, err)
	})
}

func TestParseBanditOutput(t *testing.T) {
	t.Run("valid output", func(t *testing.T) {
		output := []byte(`{
			"errors": [],
			"results": [
				{
					"filename": "scripts/deploy.py",
					"issue_severity": "HIGH",
					"issue_confidence": "HIGH",
					"issue_text": "Use of exec detected.",
					"line_number": 14,
					"test_id": "B102",
					"test_name": "exec_used"
				},
				{
					"filename": "scripts/deploy.py",
					"issue_severity": "LOW",
					"issue_text": "Possible hardcoded password: 'testing'",
					"line_number": 3,
					"test_id": "B105",
					"test_name": "hardcoded_password_string"
				}
			]
		}`)

		findings, err := parseBanditOutput(output)
		require.NoError(t, err)
		require.Len(t, findings, 2)
		assert.Equal(t, NativeFinding{
			RuleID:   "B102",
			Severity: "HIGH",
			Message:  "exec_used: Use of exec detected.",
			Location: "scripts/deploy.py:14",
		}, findings[0])
		assert.Equal(t, "LOW", findings[1].Severity)
	})

	t.Run("no results", func(t *testing.T) {
		findings, err := parseBanditOutput([]byte(`{"errors": [], "results": []}`))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("array is rejected", func(t *testing.T) {
		_, err := parseBanditOutput([]byte(`[]`))
		assert.Error(t, err)
	})
}

func TestParseTflintOutput(t *testing.T) {
	t.Run("issues and errors", func(t *testing.T) {
		output := []byte(`{
			"issues": [
				{
					"rule": {"name": "terraform_unused_declarations", "severity": "warning", "link": "https://example.invalid"},
					"message": "variable \"region\" is declared but not used",
					"range": {"filename": "variables.tf", "start": {"line": 1, "column": 1}, "end": {"line": 1, "column": 18}}
				},
				{
					"rule": {"name": "aws_instance_invalid_type", "severity": "error"},
					"message": "\"t1.2xlarge\" is an invalid value as instance_type",
					"range": {"filename": "main.tf", "start": {"line": 12, "column": 19}}
				}
			],
			"errors": [
				{"summary": "Failed to load configurations", "severity": "error"}
			]
		}`)

		findings, err := parseTflintOutput(output)
		require.NoError(t, err)
		require.Len(t, findings, 3)

		assert.Equal(t, "terraform_unused_declarations", findings[0].RuleID)
		assert.Equal(t, "warning", findings[0].Severity)
		assert.Equal(t, "variables.tf:1", findings[0].Location)

		assert.Equal(t, "error", findings[1].Severity)
		assert.Equal(t, "main.tf:12", findings[1].Location)

		assert.Equal(t, "tflint_error", findings[2].RuleID)
		assert.Equal(t, "Failed to load configurations", findings[2].Message)
		assert.Empty(t, findings[2].Location)
	})

	t.Run("clean run", func(t *testing.T) {
		findings, err := parseTflintOutput([]byte(`{"issues": [], "errors": []}`))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("plain text", func(t *testing.T) {
		_, err := parseTflintOutput([]byte("Failed to initialize plugins"))
		assert.Error(t, err)
	})
}
