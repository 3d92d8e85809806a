// Package settings loads the optional pipeline settings file: organizational rule
// parameters and per-tool binary and timeout overrides.
//
//	rules:
//	  allowed_region: us-east-1
//	  required_accounts: [management, dev, staging, prod]
//	  management_budget_minimum: 25
//	  required_thresholds: [50, 100]
//	tools:
//	  policy:
//	    binary: /opt/checkov/bin/checkov
//	    timeout: 10m
//	sequential: false
package settings

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gh-nvat/iacguard/src/pkg/configcheck"
	"github.com/gh-nvat/iacguard/src/pkg/models"
)

var logger = log.WithField("package", "settings")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("toolname", validateToolName)
}

// validateToolName accepts tool names and binary aliases understood by models.ParseTool
func validateToolName(fl validator.FieldLevel) bool {
	_, err := models.ParseTool(fl.Field().String())
	return err == nil
}

// Settings is the root of the settings file
type Settings struct {
	Rules      RuleSettings            `yaml:"rules"`
	Tools      map[string]ToolSettings `yaml:"tools" validate:"omitempty,dive,keys,toolname,endkeys"`
	Sequential bool                    `yaml:"sequential"`
}

// RuleSettings overrides the organizational rule parameters. Unset fields keep the defaults.
type RuleSettings struct {
	AllowedRegion           string   `yaml:"allowed_region" validate:"omitempty,min=3"`
	RequiredAccounts        []string `yaml:"required_accounts" validate:"omitempty,unique,dive,required"`
	ManagementBudgetMinimum *float64 `yaml:"management_budget_minimum" validate:"omitempty,gte=0"`
	ThresholdCount          *int     `yaml:"threshold_count" validate:"omitempty,gt=0"`
	RequiredThresholds      []int    `yaml:"required_thresholds" validate:"omitempty,unique,dive,gt=0,lte=100"`
}

// ToolSettings overrides how one analyzer is invoked
type ToolSettings struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Load reads and validates a settings file. An empty path yields empty settings.
func Load(path string) (*Settings, error) {
	if path == "" {
		return &Settings{}, nil
	}
	logger.WithField("path", path).Info("Load: starting...")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	logger.WithField("path", path).Info("Load: done.")
	return s, nil
}

// Validate checks the struct tags and rejects tool entries that name the same analyzer
// twice (e.g. both "policy" and "checkov")
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	names := make([]string, 0, len(s.Tools))
	for name := range s.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	seen := make(map[models.Tool]string, len(names))
	for _, name := range names {
		tool, err := models.ParseTool(name)
		if err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		if prev, ok := seen[tool]; ok {
			return fmt.Errorf("invalid settings: tools %q and %q both configure %s", prev, name, tool)
		}
		seen[tool] = name
	}
	return nil
}

// ApplyRules overlays the configured rule parameters onto base
func (s *Settings) ApplyRules(base configcheck.Rules) configcheck.Rules {
	r := s.Rules
	if r.AllowedRegion != "" {
		base.AllowedRegion = r.AllowedRegion
	}
	if len(r.RequiredAccounts) > 0 {
		base.RequiredAccounts = r.RequiredAccounts
	}
	if r.ManagementBudgetMinimum != nil {
		base.ManagementBudgetMinimum = *r.ManagementBudgetMinimum
	}
	if r.ThresholdCount != nil {
		base.ThresholdCount = *r.ThresholdCount
	}
	if len(r.RequiredThresholds) > 0 {
		base.RequiredThresholds = r.RequiredThresholds
	}
	return base
}

// Binaries returns the per-tool binary overrides
func (s *Settings) Binaries() map[models.Tool]string {
	out := make(map[models.Tool]string)
	for name, ts := range s.Tools {
		if tool, err := models.ParseTool(name); err == nil && ts.Binary != "" {
			out[tool] = ts.Binary
		}
	}
	return out
}

// Timeouts returns the per-tool timeout overrides
func (s *Settings) Timeouts() map[models.Tool]time.Duration {
	out := make(map[models.Tool]time.Duration)
	for name, ts := range s.Tools {
		if tool, err := models.ParseTool(name); err == nil && ts.Timeout > 0 {
			out[tool] = ts.Timeout
		}
	}
	return out
}
