package configcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Formats(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.json", "terraform.tfvars"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig(filepath.Join("testdata", name))
			require.NoError(t, err)
			assert.Equal(t, validConfig(), cfg)
			assert.Empty(t, Validate(cfg))
		})
	}
}

func TestDecodeConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
	}{
		{"bad yaml", "c.yaml", "account_ids: [unclosed"},
		{"bad json", "c.json", `{"aws_region": `},
		{"bad hcl", "c.tfvars", `aws_region = `},
		{"tfvars with reference", "c.tfvars", `aws_region = var.region`},
		{"wrong type", "c.json", `{"budget_thresholds": "50,80,100"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(tt.filename, []byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDecodeConfig_UnsupportedExtension(t *testing.T) {
	_, err := DecodeConfig("config.toml", []byte(""))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeConfig_PartialTfvars(t *testing.T) {
	cfg, err := DecodeConfig("partial.tfvars", []byte(`
aws_region        = "eu-west-1"
budget_thresholds = [80, 50, 100]
`))
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.AWSRegion)
	assert.Equal(t, []int{80, 50, 100}, cfg.BudgetThresholds)
	assert.Nil(t, cfg.AccountIDs)

	violations := Validate(cfg)
	assert.Equal(t, 1, countRule(violations, RuleBudgetThresholdOrder))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
