package configcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

// RegoQuery is the rule every custom policy contributes violations to.
//
// A violation is either an object {"rule_id", "field", "message"} or a plain message string:
//
//	package iacguard.config
//
//	import rego.v1
//
//	violation contains {"rule_id": "budget_dev_cap", "field": "budget_amounts.dev", "message": msg} if {
//	    input.budget_amounts.dev > 100
//	    msg := sprintf("dev budget %v exceeds the cap of 100", [input.budget_amounts.dev])
//	}
const RegoQuery = "data.iacguard.config.violation"

// regoDefaultRuleID names violations reported as plain strings
const regoDefaultRuleID = "custom_policy"

// RegoEvaluator evaluates organization-specific Rego policies against a ConfigObject.
// Each policy file must ship with a sibling <name>_test.rego.
type RegoEvaluator struct {
	policiesPath string

	// policy file path -> source
	modules  map[string]string
	query    rego.PreparedEvalQuery
	prepared bool
}

// NewRegoEvaluator creates an evaluator for the .rego files below policiesPath
func NewRegoEvaluator(policiesPath string) *RegoEvaluator {
	return &RegoEvaluator{
		policiesPath: policiesPath,
		modules:      make(map[string]string),
	}
}

// PolicyCount returns the number of loaded policy files, tests excluded
func (e *RegoEvaluator) PolicyCount() int {
	return len(e.modules)
}

// LoadAndValidate reads and compiles the policies. An empty policies path loads nothing.
func (e *RegoEvaluator) LoadAndValidate(ctx context.Context) error {
	logger.WithField("policiesPath", e.policiesPath).Info("LoadAndValidate: starting...")
	if e.policiesPath == "" {
		logger.Info("LoadAndValidate: no policies path, skipping.")
		return nil
	}

	err := filepath.WalkDir(e.policiesPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, "_test.rego") {
			return nil
		}

		testPath := strings.TrimSuffix(path, ".rego") + "_test.rego"
		if _, err := os.Stat(testPath); os.IsNotExist(err) {
			return fmt.Errorf("each policy must have tests: test file not found: %s", testPath)
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		e.modules[path] = string(src)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	if len(e.modules) == 0 {
		logger.Warn("LoadAndValidate: no policies found.")
		return nil
	}

	opts := []func(*rego.Rego){rego.Query(RegoQuery)}
	for _, path := range sortedKeys(e.modules) {
		opts = append(opts, rego.Module(path, e.modules[path]))
	}
	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}
	e.query = query
	e.prepared = true

	logger.Infof("LoadAndValidate: done, loaded %d policies.", len(e.modules))
	return nil
}

// Evaluate runs the loaded policies against cfg.
// Violations are sorted by rule id, field and message.
func (e *RegoEvaluator) Evaluate(ctx context.Context, cfg *models.ConfigObject) ([]models.Violation, error) {
	if !e.prepared {
		return []models.Violation{}, nil
	}
	logger.Info("Evaluate: starting...")

	input, err := toRegoInput(cfg)
	if err != nil {
		return nil, err
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policies: %w", err)
	}

	violations := []models.Violation{}
	for _, result := range rs {
		for _, expr := range result.Expressions {
			items, ok := expr.Value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%s must be a set, got %T", RegoQuery, expr.Value)
			}
			for _, item := range items {
				v, err := toViolation(item)
				if err != nil {
					return nil, err
				}
				violations = append(violations, v)
			}
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.Message < b.Message
	})
	logger.WithField("count", len(violations)).Info("Evaluate: done.")
	return violations, nil
}

// toRegoInput converts cfg into plain JSON values so policies see the snake_case field names
func toRegoInput(cfg *models.ConfigObject) (map[string]interface{}, error) {
	if cfg == nil {
		cfg = &models.ConfigObject{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config for policies: %w", err)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("failed to decode config for policies: %w", err)
	}
	return input, nil
}

func toViolation(item interface{}) (models.Violation, error) {
	switch v := item.(type) {
	case string:
		return models.Violation{RuleID: regoDefaultRuleID, Message: v}, nil
	case map[string]interface{}:
		out := models.Violation{RuleID: regoDefaultRuleID}
		if id, ok := v["rule_id"].(string); ok && id != "" {
			out.RuleID = id
		}
		if field, ok := v["field"].(string); ok {
			out.Field = field
		}
		msg, ok := v["message"].(string)
		if !ok {
			return models.Violation{}, fmt.Errorf("policy violation without a string message: %v", v)
		}
		out.Message = msg
		return out, nil
	default:
		return models.Violation{}, fmt.Errorf("unsupported policy violation type %T", item)
	}
}
